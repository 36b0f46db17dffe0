package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewFeeConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis       RedisConfig
	Stripe      StripeConfig
	RateLimit   RateLimitConfig
	Scheduler   SchedulerConfig
	MetricsPush MetricsPushConfig

	FeeConfigPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	HTTPTimeout   time.Duration
	MaxRetries    int64
	// APIBaseURL points the client at a stand-in API such as stripe-mock.
	APIBaseURL string
}

// Configured reports whether outbound gateway credentials are present.
func (c StripeConfig) Configured() bool {
	return strings.TrimSpace(c.SecretKey) != ""
}

type RateLimitConfig struct {
	Enabled       bool
	CheckoutRate  float64
	CheckoutBurst int
}

type SchedulerConfig struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	EnabledJobs []string
	// SweepAbandonedAfter is zero unless explicitly configured, which keeps the
	// abandoned checkout sweep disabled.
	SweepAbandonedAfter time.Duration
}

// MetricsPushConfig selects where process metrics are pushed. An empty
// exporter disables pushing.
type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "rigmarket"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "rigmarket"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			HTTPTimeout:   getenvDuration("STRIPE_HTTP_TIMEOUT", 15*time.Second),
			MaxRetries:    getenvInt64("STRIPE_MAX_NETWORK_RETRIES", 2),
			APIBaseURL:    strings.TrimSpace(getenv("STRIPE_API_BASE", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			CheckoutRate:  getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 1),
			CheckoutBurst: int(getenvInt64("RATE_LIMIT_CHECKOUT_BURST", 5)),
		},
		Scheduler: SchedulerConfig{
			RunInterval:         getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:           int(getenvInt64("SCHEDULER_BATCH_SIZE", 100)),
			JobTimeout:          getenvDuration("SCHEDULER_JOB_TIMEOUT", 30*time.Second),
			EnabledJobs:         parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
			SweepAbandonedAfter: getenvDuration("SWEEP_ABANDONED_AFTER", 0),
		},
		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", 30*time.Second),
		},
		FeeConfigPath: getenv("FEE_CONFIG_PATH", "."),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
