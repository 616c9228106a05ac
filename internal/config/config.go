package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every section of the service configuration.
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Store  StoreConfig
	Feed   FeedConfig
	Auth   AuthConfig
	Log    LogConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	feed, err := loadFeedConfig()
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Store: store, Feed: feed, Auth: auth, Log: logCfg}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// accept ":8080" or "127.0.0.1:8080" as-is
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver string // memory | sqlite | postgres
	DSN    string
}

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

func loadStoreConfig() (StoreConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORE_DRIVER", StoreMemory))
	dsn := strings.TrimSpace(os.Getenv("STORE_DSN"))

	switch driver {
	case StoreMemory:
	case StoreSQLite:
		if dsn == "" {
			dsn = "ai-pass.db"
		}
	case StorePostgres:
		if dsn == "" {
			return StoreConfig{}, errors.New("STORE_DSN is required for the postgres store")
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value: %q", driver)
	}

	return StoreConfig{Driver: driver, DSN: dsn}, nil
}

// FeedConfig selects how change notifications are fanned out to live subscriptions.
type FeedConfig struct {
	Driver        string // memory | redis | nats
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	Prefix        string
}

const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
	FeedNATS   = "nats"
)

func loadFeedConfig() (FeedConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("FEED_DRIVER", FeedMemory))
	switch driver {
	case FeedMemory, FeedRedis, FeedNATS:
	default:
		return FeedConfig{}, fmt.Errorf("invalid FEED_DRIVER value: %q", driver)
	}

	redisDB := 0
	if db, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return FeedConfig{}, err
	} else if db != nil {
		redisDB = *db
	}

	return FeedConfig{
		Driver:        driver,
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:       redisDB,
		NATSURL:       getEnvOrDefault("NATS_URL", "nats://127.0.0.1:4222"),
		Prefix:        getEnvOrDefault("FEED_PREFIX", "aipass"),
	}, nil
}

// AuthConfig configures the bearer-token identity provider.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

func loadAuthConfig() (AuthConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return AuthConfig{}, errors.New("JWT_SECRET is required")
	}

	ttl := 24 * time.Hour
	if raw := strings.TrimSpace(os.Getenv("JWT_TTL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("invalid JWT_TTL value %q: %w", raw, err)
		}
		ttl = parsed
	}

	return AuthConfig{
		JWTSecret: secret,
		Issuer:    getEnvOrDefault("JWT_ISSUER", "ai-pass"),
		TokenTTL:  ttl,
	}, nil
}

// LogConfig controls the zap logger.
type LogConfig struct {
	File       string
	Production bool
}

func loadLogConfig() (LogConfig, error) {
	prod, err := parseBoolEnv("LOG_PRODUCTION", strings.EqualFold(os.Getenv("APP_ENV"), "production"))
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		File:       strings.TrimSpace(os.Getenv("LOG_FILE")),
		Production: prod,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
