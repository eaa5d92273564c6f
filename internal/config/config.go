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

	OTLPEndpoint  string
	SnowflakeNode int64

	DBType            string
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
	MigrateOnStart    bool

	VaultMasterKey string
	AdminAPIToken  string

	ResolverTimeout time.Duration
	Billing         BillingRuntimeConfig

	PaymentProvider string
	StripeSecretKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SchedulerEnabled bool
}

// BillingRuntimeConfig carries the env-driven billing settings. Schedule
// values may be overridden at runtime through BillingConfigHolder.
type BillingRuntimeConfig struct {
	TenantTimeout        time.Duration
	Concurrency          int
	Currency             string
	Location             string
	Cutoff               string
	OverdueSweepInterval time.Duration
	ConfigFile           string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_NAME", "tenantgate"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),

		DBType:            strings.ToLower(getenv("DB_TYPE", "postgres")),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "tenantgate"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBDSN:             strings.TrimSpace(getenv("DB_DSN", "")),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 300),
		MigrateOnStart:    getenvBool("MIGRATE_ON_START", false),

		VaultMasterKey: strings.TrimSpace(getenv("VAULT_MASTER_KEY", "")),
		AdminAPIToken:  strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),

		ResolverTimeout: getenvDuration("RESOLVER_TIMEOUT", 5*time.Second),
		Billing: BillingRuntimeConfig{
			TenantTimeout:        getenvDuration("BILLING_TENANT_TIMEOUT", 30*time.Second),
			Concurrency:          getenvInt("BILLING_CONCURRENCY", 4),
			Currency:             strings.ToUpper(getenv("BILLING_CURRENCY", "USD")),
			Location:             getenv("BILLING_LOCATION", "UTC"),
			Cutoff:               getenv("BILLING_CUTOFF", "23:00"),
			OverdueSweepInterval: getenvDuration("OVERDUE_SWEEP_INTERVAL", time.Hour),
			ConfigFile:           getenv("BILLING_CONFIG_FILE", "billing.yml"),
		},

		PaymentProvider: strings.ToLower(getenv("PAYMENT_PROVIDER", "manual")),
		StripeSecretKey: strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		SchedulerEnabled: getenvBool("SCHEDULER_ENABLED", true),
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

func getenvInt(key string, def int) int {
	return int(getenvInt64(key, int64(def)))
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
