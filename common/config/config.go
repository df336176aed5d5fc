package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service    ServiceConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	RateLimits RateLimitConfig
	Retry      RetryConfig
	Cache      CacheConfig
	Limits     ExecutionLimits
	Response   ResponseConfig
	Audit      AuditConfig
	Storage    StorageConfig
}

// AuditConfig selects the audit sink backend
type AuditConfig struct {
	// Sink is one of "memory", "redis", "postgres"
	Sink string
	// Stream names the Redis stream when Sink is "redis"
	Stream string
}

// StorageConfig holds StoreData backend settings
type StorageConfig struct {
	FileDir string
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings for the audit sink
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds per-agent sliding-window limits
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	APICallsPerMinute int
	APICallsPerHour   int

	// ThrottleDelay inserts a fixed pause between granted slots when > 0
	ThrottleDelay time.Duration
}

// RetryConfig holds the retry policy settings
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	BackoffBase  float64
	Jitter       bool
}

// CacheConfig holds result cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
	MaxSize    int
	// PerKindTTL overrides the default TTL for named operation kinds
	PerKindTTL map[string]time.Duration
}

// ExecutionLimits caps a single execution
type ExecutionLimits struct {
	MaxOperationsPerWorkflow int
	MaxWorkflowDuration      time.Duration
	MaxDataModelBytes        int

	// ContinueOnError is recognized but currently a no-op; the engine
	// always stops on the first terminal failure.
	ContinueOnError bool
}

// ResponseConfig shapes the data projection returned to agents
type ResponseConfig struct {
	MaxStringLength int
	MaxArrayLength  int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "a2e"),
			User:        getEnv("POSTGRES_USER", "a2e"),
			Password:    getEnv("POSTGRES_PASSWORD", "a2e"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RateLimits: RateLimitConfig{
			RequestsPerMinute: getEnvInt("RATE_REQUESTS_PER_MINUTE", 60),
			RequestsPerHour:   getEnvInt("RATE_REQUESTS_PER_HOUR", 1000),
			RequestsPerDay:    getEnvInt("RATE_REQUESTS_PER_DAY", 10000),
			APICallsPerMinute: getEnvInt("RATE_API_CALLS_PER_MINUTE", 30),
			APICallsPerHour:   getEnvInt("RATE_API_CALLS_PER_HOUR", 500),
			ThrottleDelay:     getEnvDuration("RATE_THROTTLE_DELAY", 0),
		},
		Retry: RetryConfig{
			MaxRetries:   getEnvInt("RETRY_MAX_RETRIES", 3),
			InitialDelay: getEnvDuration("RETRY_INITIAL_DELAY", 1*time.Second),
			MaxDelay:     getEnvDuration("RETRY_MAX_DELAY", 60*time.Second),
			BackoffBase:  getEnvFloat("RETRY_BACKOFF_BASE", 2.0),
			Jitter:       getEnvBool("RETRY_JITTER", true),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
			MaxSize:    getEnvInt("CACHE_MAX_SIZE", 1000),
			PerKindTTL: getEnvTTLMap("CACHE_PER_KIND_TTL"),
		},
		Limits: ExecutionLimits{
			MaxOperationsPerWorkflow: getEnvInt("LIMIT_MAX_OPERATIONS", 100),
			MaxWorkflowDuration:      getEnvDuration("LIMIT_MAX_WORKFLOW_DURATION", 30*time.Second),
			MaxDataModelBytes:        getEnvInt("LIMIT_MAX_DATA_MODEL_BYTES", 8<<20),
			ContinueOnError:          getEnvBool("LIMIT_CONTINUE_ON_ERROR", false),
		},
		Response: ResponseConfig{
			MaxStringLength: getEnvInt("RESPONSE_MAX_STRING_LENGTH", 1024),
			MaxArrayLength:  getEnvInt("RESPONSE_MAX_ARRAY_LENGTH", 50),
		},
		Audit: AuditConfig{
			Sink:   getEnv("AUDIT_SINK", "memory"),
			Stream: getEnv("AUDIT_REDIS_STREAM", ""),
		},
		Storage: StorageConfig{
			FileDir: getEnv("STORAGE_FILE_DIR", "./data/storage"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.RateLimits.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be >= 1")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0")
	}

	if c.Retry.BackoffBase < 1 {
		return fmt.Errorf("backoff_base must be >= 1")
	}

	if c.Limits.MaxOperationsPerWorkflow < 1 {
		return fmt.Errorf("max_operations_per_workflow must be >= 1")
	}

	switch c.Audit.Sink {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown audit sink: %s", c.Audit.Sink)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvTTLMap parses "Kind=duration,Kind=duration" pairs
func getEnvTTLMap(key string) map[string]time.Duration {
	out := make(map[string]time.Duration)
	value := os.Getenv(key)
	if value == "" {
		return out
	}
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if d, err := time.ParseDuration(parts[1]); err == nil {
			out[parts[0]] = d
		}
	}
	return out
}
