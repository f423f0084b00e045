// Package config provides configuration management for the ledger dashboard.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Import    ImportConfig
	Explorer  ExplorerConfig
	Quote     QuoteConfig
	Archive   ArchiveConfig
	Events    EventsConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration. An empty Host disables caching.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// Enabled reports whether a Redis host is configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// RateLimitConfig holds per-client API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ImportConfig holds import pipeline configuration
type ImportConfig struct {
	FetcherBin    string
	WorkDir       string
	SweepInterval time.Duration
	Retention     time.Duration
}

// ExplorerConfig holds fallback explorer credentials and endpoints per network
type ExplorerConfig struct {
	APIKeys  map[string]string
	BaseURLs map[string]string
}

// QuoteConfig holds native balance quote configuration. No RPC URLs disables quoting.
type QuoteConfig struct {
	RPCURLs        map[string]string
	NativePriceUSD float64
	CacheTTL       time.Duration
}

// ArchiveConfig holds MinIO artifact archive configuration
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

// EventsConfig holds Kafka event publishing configuration
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured.
func (c EventsConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "ledger_dashboard"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", ""),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 20*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 50),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 100),
		},
		Import: ImportConfig{
			FetcherBin:    getEnv("FETCHER_BIN", "fetcher"),
			WorkDir:       getEnv("IMPORT_WORK_DIR", filepath.Join(os.TempDir(), "ledger-imports")),
			SweepInterval: getEnvAsDuration("IMPORT_SWEEP_INTERVAL", 10*time.Minute),
			Retention:     getEnvAsDuration("IMPORT_RETENTION", time.Hour),
		},
		Explorer: ExplorerConfig{
			APIKeys: map[string]string{
				"ethereum": getEnv("ETHERSCAN_API_KEY", ""),
				"base":     getEnv("BASESCAN_API_KEY", ""),
			},
			BaseURLs: map[string]string{
				"ethereum": getEnv("ETHERSCAN_BASE_URL", "https://api.etherscan.io/api"),
				"base":     getEnv("BASESCAN_BASE_URL", "https://api.basescan.org/api"),
			},
		},
		Quote: QuoteConfig{
			RPCURLs:        loadRPCURLs("ethereum", "base"),
			NativePriceUSD: getEnvAsFloat("NATIVE_PRICE_USD", 3200),
			CacheTTL:       getEnvAsDuration("QUOTE_CACHE_TTL", time.Minute),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "ledger-artifacts"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Events: EventsConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "ledger.imports"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// loadRPCURLs reads <NETWORK>_RPC_URL for each network, skipping unset ones
func loadRPCURLs(networks ...string) map[string]string {
	urls := make(map[string]string)
	for _, n := range networks {
		if v := getEnv(strings.ToUpper(n)+"_RPC_URL", ""); v != "" {
			urls[n] = v
		}
	}
	return urls
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
