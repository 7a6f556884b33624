package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config contains runtime configuration values.
type Config struct {
	Environment     string
	HTTPPort        string
	ServiceName     string
	BaseDomain      string
	NodeID          int64
	StorageDriver   string
	DatabaseURL     string
	DatabaseMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	SessionTTL           time.Duration
	SessionCookie        string
	AuthorizationCodeTTL time.Duration

	AllowTokenDetailsWithoutClientCredentials bool

	AccessLogQueueSize int
	AccessLogSource    string

	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool

	Seed Seed
}

// Seed describes the tenant created on startup when enabled.
type Seed struct {
	Enabled      bool
	DomainPrefix string
	OrgName      string
	ClientID     string
	ClientSecret string
	TokenFormat  string
	RedirectURL  string
	Scopes       []string
	Username     string
	Password     string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:     getEnv("APP_ENV", "development"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ServiceName:     getEnv("SERVICE_NAME", "authbox"),
		BaseDomain:      strings.TrimPrefix(getEnv("BASE_DOMAIN", "localhost"), "."),
		NodeID:          int64(getInt("NODE_ID", 1)),
		StorageDriver:   strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DatabaseMigrate: getBool("DATABASE_MIGRATE", true),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		CacheTTL:      getDuration("CACHE_TTL", 5*time.Minute),

		SessionTTL:           getDuration("SESSION_TTL", 15*time.Minute),
		SessionCookie:        getEnv("SESSION_COOKIE", "authbox_session"),
		AuthorizationCodeTTL: getDuration("AUTHORIZATION_CODE_TTL", 60*time.Second),

		AllowTokenDetailsWithoutClientCredentials: getBool("ALLOW_TOKEN_DETAILS_WITHOUT_CLIENT_CREDENTIALS", false),

		AccessLogQueueSize: getInt("ACCESS_LOG_QUEUE_SIZE", 10000),
		AccessLogSource:    getEnv("ACCESS_LOG_SOURCE", "Oauth2Server"),

		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),

		Seed: Seed{
			Enabled:      getBool("SEED_ENABLED", false),
			DomainPrefix: strings.TrimSpace(os.Getenv("SEED_DOMAIN_PREFIX")),
			OrgName:      getEnv("SEED_ORG_NAME", "Default organization"),
			ClientID:     strings.TrimSpace(os.Getenv("SEED_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("SEED_CLIENT_SECRET")),
			TokenFormat:  strings.ToUpper(getEnv("SEED_TOKEN_FORMAT", "STANDARD")),
			RedirectURL:  os.Getenv("SEED_REDIRECT_URL"),
			Scopes:       getList("SEED_SCOPES", nil),
			Username:     strings.TrimSpace(os.Getenv("SEED_USERNAME")),
			Password:     os.Getenv("SEED_PASSWORD"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StoragePostgres, StorageMemory)
	}
	if c.AccessLogQueueSize <= 0 {
		return fmt.Errorf("ACCESS_LOG_QUEUE_SIZE must be positive")
	}
	if c.AuthorizationCodeTTL <= 0 {
		return fmt.Errorf("AUTHORIZATION_CODE_TTL must be positive")
	}
	if c.Seed.Enabled {
		if c.Seed.DomainPrefix == "" || c.Seed.ClientID == "" || c.Seed.ClientSecret == "" {
			return fmt.Errorf("SEED_DOMAIN_PREFIX, SEED_CLIENT_ID and SEED_CLIENT_SECRET are required when SEED_ENABLED is set")
		}
		if c.Seed.TokenFormat != "JWT" && c.Seed.TokenFormat != "STANDARD" {
			return fmt.Errorf("SEED_TOKEN_FORMAT must be JWT or STANDARD")
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
