package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Store     StoreConfig
	Payment   PaymentConfig
	Download  DownloadConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Logger    LoggerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSOrigin            string
}

// StoreConfig holds object-store connection values and key layout.
type StoreConfig struct {
	Region          string
	Bucket          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	EncryptAtRest   bool

	TokenPrefix      string
	TokenStatePrefix string
	OrderPrefix      string
	ManifestKey      string
	ResourceFallback string
	DatasetPrefix    string
}

// PaymentConfig holds gateway credentials and the server-side price.
type PaymentConfig struct {
	Env          string
	ClientID     string
	ClientSecret string
	WebhookID    string
	Price        string
	Currency     string
	Description  string
	BrandName    string
	TimeoutSec   int
}

// DownloadConfig tunes the token lifecycle.
type DownloadConfig struct {
	TokenTTL         time.Duration
	MaxUses          int
	SignedURLTTL     time.Duration
	GracePeriod      time.Duration
	CASMaxRetries    int
	CASBackoffBase   time.Duration
	CASBackoffJitter time.Duration
	Filename         string
	LinkSecret       string
	LinkTTL          time.Duration
}

// AdminConfig guards elevated operations.
type AdminConfig struct {
	Secret string
}

// RateLimitConfig tunes the advisory per-client limiter.
type RateLimitConfig struct {
	PerWindow int
	Window    time.Duration
	UseRedis  bool
}

// RedisConfig holds Redis connection values for the optional shared limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "download-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSOrigin:            getEnv("CORS_ORIGIN", "*"),
		},
		Store: StoreConfig{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          os.Getenv("S3_BUCKET_NAME"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			ForcePathStyle:  getEnvAsBool("S3_FORCE_PATH_STYLE", false),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			EncryptAtRest:   getEnvAsBool("S3_ENCRYPT_AT_REST", true),

			TokenPrefix:      getEnv("TOKENS_JSON_PREFIX", "tokens/"),
			TokenStatePrefix: getEnv("TOKENS_STATE_PREFIX", "tokens-state/"),
			OrderPrefix:      getEnv("ORDERS_PREFIX", "orders/"),
			ManifestKey:      getEnv("S3_MANIFEST_KEY", "exports/manifest.json"),
			ResourceFallback: getEnv("CSV_OBJECT_KEY", "exports/brands-latest.csv"),
			DatasetPrefix:    getEnv("DATASET_PREFIX", "exports/"),
		},
		Payment: PaymentConfig{
			Env:          getEnv("PAYPAL_ENV", "sandbox"),
			ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
			ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			WebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),
			Price:        getEnv("PRICE_USD", "9.00"),
			Currency:     getEnv("PAYPAL_CURRENCY", "USD"),
			Description:  getEnv("PRODUCT_DESCRIPTION", "Vanished Brands CSV"),
			BrandName:    getEnv("BRAND_NAME", "Vanished Brands"),
			TimeoutSec:   getEnvAsInt("PAYPAL_TIMEOUT_SECONDS", 20),
		},
		Download: DownloadConfig{
			TokenTTL:         getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
			MaxUses:          getEnvAsInt("MAX_TOKEN_USES", 3),
			SignedURLTTL:     getEnvAsDuration("DOWNLOAD_URL_TTL", 15*time.Minute),
			GracePeriod:      getEnvAsDuration("EXPIRY_GRACE_PERIOD", 5*time.Second),
			CASMaxRetries:    getEnvAsInt("CAS_MAX_RETRIES", 5),
			CASBackoffBase:   getEnvAsDuration("CAS_BACKOFF_BASE", 40*time.Millisecond),
			CASBackoffJitter: getEnvAsDuration("CAS_BACKOFF_JITTER", 140*time.Millisecond),
			Filename:         getEnv("DOWNLOAD_FILENAME", "vanished-brands.csv"),
			LinkSecret:       getEnv("DATA_DOWNLOAD_SECRET", ""),
			LinkTTL:          getEnvAsDuration("DATA_LINK_TTL", time.Hour),
		},
		Admin: AdminConfig{
			Secret: os.Getenv("ADMIN_REMINT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			PerWindow: getEnvAsInt("RATE_LIMIT_PER_MIN", 20),
			Window:    getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			UseRedis:  getEnvAsBool("RATE_LIMIT_USE_REDIS", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the bounded timeout for gateway calls.
func (p PaymentConfig) Timeout() time.Duration {
	if p.TimeoutSec <= 0 {
		return 20 * time.Second
	}
	return time.Duration(p.TimeoutSec) * time.Second
}

// BaseURL resolves the gateway API base for the configured environment.
func (p PaymentConfig) BaseURL() string {
	if p.Env == "live" {
		return "https://api-m.paypal.com"
	}
	return "https://api-m.sandbox.paypal.com"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
