package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ticketTransitions metric.Int64Counter
	ledgerMovements   metric.Int64Counter
	notifications     metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
	schedulerJobs     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled || strings.TrimSpace(cfg.ExporterEndpoint) == "" {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New registers the domain counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "cabletrack"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ticketTransitions, "cabletrack_ticket_transitions_total", "Committed ticket status changes."},
		{&m.ledgerMovements, "cabletrack_ledger_movements_total", "Inventory movements appended to the ledger."},
		{&m.notifications, "cabletrack_notifications_total", "Notification delivery attempts."},
		{&m.rateLimitDenied, "cabletrack_rate_limit_denied_total", "Requests refused by the approval link limiter."},
		{&m.schedulerJobs, "cabletrack_scheduler_jobs_total", "Maintenance job runs."},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) RecordTicketTransition(ctx context.Context, from, to string) {
	if m != nil {
		add(ctx, m.ticketTransitions, 1, "from_status", from, "to_status", to)
	}
}

func (m *Metrics) RecordLedgerMovements(ctx context.Context, sourceType, movementType string, count int) {
	if m != nil && count > 0 {
		add(ctx, m.ledgerMovements, int64(count), "source_type", sourceType, "movement_type", movementType)
	}
}

// RecordNotification counts one delivery attempt per channel and outcome.
func (m *Metrics) RecordNotification(ctx context.Context, channel, status string) {
	if m != nil {
		add(ctx, m.notifications, 1, "channel", channel, "status", status)
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m != nil {
		add(ctx, m.rateLimitDenied, 1, "endpoint", endpoint, "reason", reason)
	}
}

// RecordSchedulerJob counts a job run; outcome is ok, timeout or error.
func (m *Metrics) RecordSchedulerJob(ctx context.Context, job, outcome string) {
	if m != nil {
		add(ctx, m.schedulerJobs, 1, "job", job, "outcome", outcome)
	}
}

// add takes alternating label keys and values.
func add(ctx context.Context, counter metric.Int64Counter, n int64, kv ...string) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], strings.TrimSpace(kv[i+1])))
	}
	counter.Add(ctx, n, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":      {},
	"status_code":   {},
	"from_status":   {},
	"to_status":     {},
	"source_type":   {},
	"movement_type": {},
	"channel":       {},
	"status":        {},
	"reason":        {},
	"job":           {},
	"outcome":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
