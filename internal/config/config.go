package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	AppURL      string

	AuthTokenSecret string
	AuthTokenTTL    time.Duration
	AllowSelfRole   bool

	Telemetry TelemetryConfig

	DBType             string
	DBHost             string
	DBPort             string
	DBName             string
	DBUser             string
	DBPassword         string
	DBSSLMode          string
	DBPath             string
	DBMaxIdleConn      int
	DBMaxOpenConn      int
	DBConnMaxLifetime  int
	DBConnMaxIdleTime  int
	DBStatementTimeout time.Duration

	Email     EmailConfig
	SMS       SMSConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Events    EventsConfig

	NotificationConfigPath string

	Bootstrap BootstrapConfig
	Scheduler SchedulerConfig
}

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c EmailConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type SMSConfig struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string
	APIBaseURL  string
	HTTPTimeout time.Duration
}

func (c SMSConfig) Enabled() bool {
	return strings.TrimSpace(c.AccountSID) != "" && strings.TrimSpace(c.AuthToken) != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type RateLimitConfig struct {
	ApprovalLimit  int
	ApprovalWindow time.Duration
}

type EventsConfig struct {
	Workers   int
	QueueSize int
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// TelemetryConfig drives the zap logger and the otel exporters.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

type BootstrapConfig struct {
	SeedDemoUsers bool
	RunMigrations bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getenv("APP_SERVICE", "cabletrack"),
		AppVersion:      getenv("APP_VERSION", "dev"),
		Environment:     getenv("ENVIRONMENT", "development"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		AppURL:          strings.TrimRight(getenv("APP_URL", "http://localhost:3000"), "/"),
		AuthTokenSecret: strings.TrimSpace(getenv("SECRET_KEY", "dev-secret-change-me")),
		AuthTokenTTL:    time.Duration(getenvInt64("AUTH_TOKEN_TTL_SECONDS", 86400)) * time.Second,
		AllowSelfRole:   getenvBool("ALLOW_SELF_ROLE", false),

		DBType:             strings.ToLower(getenv("DB_TYPE", "postgres")),
		DBHost:             getenv("DB_HOST", "localhost"),
		DBPort:             getenv("DB_PORT", "5432"),
		DBName:             getenv("DB_NAME", "cabletrack"),
		DBUser:             getenv("DB_USER", "postgres"),
		DBPassword:         getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:          getenv("DB_SSL_MODE", "disable"),
		DBPath:             getenv("DB_PATH", "cabletrack.db"),
		DBMaxOpenConn:      int(getenvInt64("DB_MAX_OPEN_CONN", 50)),
		DBMaxIdleConn:      int(getenvInt64("DB_MAX_IDLE_CONN", 10)),
		DBConnMaxLifetime:  int(getenvInt64("DB_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime:  int(getenvInt64("DB_CONN_MAX_IDLE_TIME", 60)),
		DBStatementTimeout: getenvDuration("DB_STATEMENT_TIMEOUT", 5*time.Second),

		Email: EmailConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     int(getenvInt64("SMTP_PORT", 587)),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("EMAIL_FROM", "noreply@cabletrack.local"),
		},
		SMS: SMSConfig{
			AccountSID:  strings.TrimSpace(getenv("TWILIO_ACCOUNT_SID", "")),
			AuthToken:   strings.TrimSpace(getenv("TWILIO_AUTH_TOKEN", "")),
			FromNumber:  strings.TrimSpace(getenv("TWILIO_PHONE_NUMBER", "")),
			APIBaseURL:  getenv("TWILIO_API_BASE_URL", "https://api.twilio.com"),
			HTTPTimeout: getenvDuration("TWILIO_HTTP_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			ApprovalLimit:  int(getenvInt64("APPROVAL_RATE_LIMIT", 30)),
			ApprovalWindow: getenvDuration("APPROVAL_RATE_WINDOW", time.Minute),
		},
		Events: EventsConfig{
			Workers:   int(getenvInt64("EVENT_WORKERS", 2)),
			QueueSize: int(getenvInt64("EVENT_QUEUE_SIZE", 256)),
		},
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", true),
			OTLPEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", ""))),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		NotificationConfigPath: getenv("NOTIFICATION_CONFIG_PATH", "config/notifications.yml"),
		Bootstrap: BootstrapConfig{
			SeedDemoUsers: getenvBool("BOOTSTRAP_SEED_DEMO_USERS", false),
			RunMigrations: getenvBool("BOOTSTRAP_RUN_MIGRATIONS", true),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getenvBool("SCHEDULER_ENABLED", true),
			Interval: getenvDuration("SCHEDULER_INTERVAL", 15*time.Minute),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("5s") or bare seconds ("5").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
