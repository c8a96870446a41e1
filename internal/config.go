package internal

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Storage Configuration
	StoreBackend string // "postgres" or "memory"
	UsageBackend string // "postgres", "memory" or "redis"
	DatabaseUrl  string

	// Redis (usage counters)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Quota and billing
	FreeMessagesPerMonth int
	PaymentSuccessRate   float64

	// Simulated answer latency
	AnswerDelayMin time.Duration
	AnswerDelayMax time.Duration

	// Renewal worker
	RenewalEnabled   bool
	RenewalInterval  time.Duration
	RenewalBatchSize int

	// Rate limiting of the ask endpoint
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string

	// Networks allowed to scrape /metrics without credentials
	MetricsTrustedNetworks []netip.Prefix
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		StoreBackend: getEnv("STORE_BACKEND", BackendPostgres),
		DatabaseUrl:  os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		FreeMessagesPerMonth: getEnvInt("FREE_MESSAGES_PER_MONTH", 3),
		PaymentSuccessRate:   getEnvFloat("PAYMENT_SUCCESS_RATE", 0.8),

		// Answers take 1-3 seconds by default
		AnswerDelayMin: getEnvDuration("ANSWER_DELAY_MIN", 1*time.Second),
		AnswerDelayMax: getEnvDuration("ANSWER_DELAY_MAX", 3*time.Second),

		RenewalEnabled:   getEnvBool("RENEWAL_ENABLED", true),
		RenewalInterval:  getEnvDuration("RENEWAL_INTERVAL", 1*time.Hour),
		RenewalBatchSize: getEnvInt("RENEWAL_BATCH_SIZE", 100),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Usage counters live with the rest of the data unless overridden
	cfg.UsageBackend = getEnv("USAGE_BACKEND", cfg.StoreBackend)

	networks, err := parsePrefixes(os.Getenv("METRICS_TRUSTED_NETWORKS"))
	if err != nil {
		return nil, fmt.Errorf("METRICS_TRUSTED_NETWORKS: %w", err)
	}
	cfg.MetricsTrustedNetworks = networks

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be either 'postgres' or 'memory', got: %s", c.StoreBackend)
	}

	switch c.UsageBackend {
	case BackendPostgres, BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("USAGE_BACKEND must be 'postgres', 'memory' or 'redis', got: %s", c.UsageBackend)
	}

	if c.UsesPostgres() && c.DatabaseUrl == "" {
		return fmt.Errorf("DATABASE_URL is required when a postgres backend is selected")
	}
	if c.UsageBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when USAGE_BACKEND is 'redis'")
	}

	if c.FreeMessagesPerMonth < 0 {
		return fmt.Errorf("FREE_MESSAGES_PER_MONTH must be >= 0, got: %d", c.FreeMessagesPerMonth)
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		return fmt.Errorf("PAYMENT_SUCCESS_RATE must be between 0 and 1, got: %g", c.PaymentSuccessRate)
	}
	if c.AnswerDelayMin < 0 || c.AnswerDelayMax < c.AnswerDelayMin {
		return fmt.Errorf("ANSWER_DELAY_MIN must be >= 0 and <= ANSWER_DELAY_MAX")
	}
	if c.RenewalEnabled && c.RenewalInterval <= 0 {
		return fmt.Errorf("RENEWAL_INTERVAL must be positive when renewals are enabled")
	}
	if c.RenewalBatchSize <= 0 {
		return fmt.Errorf("RENEWAL_BATCH_SIZE must be positive, got: %d", c.RenewalBatchSize)
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	return nil
}

// UsesPostgres reports whether any backend needs a database connection.
func (c *Config) UsesPostgres() bool {
	return c.StoreBackend == BackendPostgres || c.UsageBackend == BackendPostgres
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// parsePrefixes reads a comma-separated CIDR list. Bare addresses are
// treated as single-host prefixes.
func parsePrefixes(value string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, field := range strings.Split(value, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if !strings.Contains(field, "/") {
			addr, err := netip.ParseAddr(field)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(field)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}
