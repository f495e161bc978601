package observability

import (
	"github.com/smallbiznis/cabletrack/internal/observability/logger"
	"github.com/smallbiznis/cabletrack/internal/observability/metrics"
	"github.com/smallbiznis/cabletrack/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var loggerProviders = fx.Provide(
	LoadConfig,
	func(cfg Config) logger.Config {
		return logger.Config{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
			Version:     cfg.Version,
			Level:       cfg.LogLevel,
			Format:      cfg.LogFormat,
			Debug:       cfg.Debug(),
		}
	},
	logger.New,
)

// Module wires logging, tracing and metrics for the server process.
var Module = fx.Module("observability",
	loggerProviders,
	fx.Provide(
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.OtelEnabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				SamplingRatio:    cfg.OtelSamplingRatio,
			}
		},
		tracing.NewProvider,
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.OtelEnabled,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// nothing consumes the tracer provider directly; it registers itself
	// as the otel global
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

// LoggerModule is the zap logger alone, for CLI tasks.
var LoggerModule = fx.Module("observability.logger", loggerProviders)
