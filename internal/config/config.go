package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	"github.com/smallbiznis/fedbill/internal/validator"
)

// Config holds application configuration.
type Config struct {
	AppName     string `validate:"required"`
	AppVersion  string
	Environment string `validate:"required"`
	HTTPAddr    string `validate:"required"`

	Telemetry TelemetryConfig

	DBType            string `validate:"oneof=postgres mysql sqlite"`
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBDSN             string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBMetricsEnabled  bool
	DBSlowQuery       time.Duration

	Redis         RedisConfig
	RunnerLockTTL time.Duration
	RateLimit     RateLimitConfig

	Peers PeersConfig

	// AdminTokens maps an admin token name to the argon2id hash of its secret.
	AdminTokens map[string]string
	// AdminBootstrapSubject is granted the admin role at start-up.
	AdminBootstrapSubject string

	PlansConfigPath string
	DefaultPlanName string `validate:"required"`
	DefaultPlanType string `validate:"oneof=prepaid postpaid"`

	MetricsPush MetricsPushConfig
}

// TelemetryConfig drives logging and the OpenTelemetry exporters.
type TelemetryConfig struct {
	LogLevel      string `validate:"oneof=debug info warn error"`
	LogFormat     string `validate:"oneof=json console"`
	OtelEnabled   bool
	OtelEndpoint  string
	OtelProtocol  string  `validate:"oneof=grpc http http/protobuf"`
	SamplingRatio float64 `validate:"gte=0,lte=1"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// RateLimitConfig bounds admin requests per client address. It only applies
// when Redis is configured.
type RateLimitConfig struct {
	Rate  float64 `validate:"gte=0"`
	Burst int     `validate:"gte=0"`
}

// PeersConfig locates the federation services fedbill calls.
type PeersConfig struct {
	AccountingURL string `validate:"required,url"`
	RASURL        string `validate:"required,url"`
	AuthURL       string `validate:"required,url"`
	LocalProvider string `validate:"required"`
	Username      string
	Password      string
	RetryMax      int `validate:"gte=0"`
	TokenTTL      time.Duration
}

type MetricsPushConfig struct {
	Exporter  string `validate:"omitempty,oneof=remote_write pushgateway"`
	Endpoint  string `validate:"required_with=Exporter"`
	AuthToken string
	Interval  time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_NAME", "fedbill"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fedbill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBDSN:             strings.TrimSpace(getenv("DATABASE_DSN", "")),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBMetricsEnabled:  getenvBool("DB_METRICS_ENABLED", false),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RunnerLockTTL: getenvDuration("RUNNER_LOCK_TTL", 5*time.Minute),
		RateLimit: RateLimitConfig{
			Rate:  getenvFloat("ADMIN_RATE_LIMIT_RPS", 5),
			Burst: getenvInt("ADMIN_RATE_LIMIT_BURST", 20),
		},

		Peers: PeersConfig{
			AccountingURL: strings.TrimSpace(getenv("ACCS_URL", "http://localhost:8081")),
			RASURL:        strings.TrimSpace(getenv("RAS_URL", "http://localhost:8082")),
			AuthURL:       strings.TrimSpace(getenv("AS_URL", "http://localhost:8083")),
			LocalProvider: strings.TrimSpace(getenv("LOCAL_PROVIDER_ID", "localprovider")),
			Username:      getenv("MANAGER_USERNAME", ""),
			Password:      getenv("MANAGER_PASSWORD", ""),
			RetryMax:      getenvInt("PEER_RETRY_MAX", 0),
			TokenTTL:      getenvDuration("PEER_TOKEN_TTL", 30*time.Minute),
		},

		AdminTokens:           ParseAdminTokens(os.Getenv("ADMIN_TOKENS")),
		AdminBootstrapSubject: strings.TrimSpace(getenv("ADMIN_BOOTSTRAP_SUBJECT", "admin")),

		PlansConfigPath: strings.TrimSpace(getenv("PLANS_CONFIG_PATH", "")),
		DefaultPlanName: strings.TrimSpace(getenv("DEFAULT_PLAN_NAME", "default")),
		DefaultPlanType: strings.ToLower(strings.TrimSpace(getenv("DEFAULT_PLAN_TYPE", "postpaid"))),

		MetricsPush: MetricsPushConfig{
			Exporter:  strings.ToLower(strings.TrimSpace(getenv("METRICS_PUSH_EXPORTER", ""))),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_TOKEN", "")),
			Interval:  getenvDuration("METRICS_PUSH_INTERVAL", time.Minute),
		},
	}

	return cfg
}

// Validate checks the struct tags of c.
// SharedStorage reports whether several replicas run against one database.
// A configured redis address is what coordinates them.
func (c Config) SharedStorage() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

func (c Config) Validate() error {
	if err := validator.ValidateStruct(c); err != nil {
		return ierr.WithError(err).WithMessage("invalid configuration").Mark(ierr.ErrValidation)
	}
	return nil
}

// ParseAdminTokens reads "name=hash" entries separated by ';'. Hashes may
// themselves contain '=' and ','.
func ParseAdminTokens(raw string) map[string]string {
	out := map[string]string{}
	for _, entry := range strings.Split(raw, ";") {
		name, hash, ok := strings.Cut(strings.TrimSpace(entry), "=")
		name, hash = strings.TrimSpace(name), strings.TrimSpace(hash)
		if !ok || name == "" || hash == "" {
			continue
		}
		out[name] = hash
	}
	return out
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
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

// getenvDuration accepts integer milliseconds or a Go duration string.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return def
}
