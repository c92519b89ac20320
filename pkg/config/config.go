package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server       ServerConfig       `json:"server"`
	Redis        RedisConfig        `json:"redis"`
	Cache        CacheConfig        `json:"cache"`
	Connectivity ConnectivityConfig `json:"connectivity"`
	Resilience   ResilienceConfig   `json:"resilience"`
	Logging      LoggingConfig      `json:"logging"`
	Tracing      TracingConfig      `json:"tracing"`
}

// ServerConfig contains the operational HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// RedisConfig contains Redis connection configuration for the cache store
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	Enabled  bool   `json:"enabled"`
}

// CacheConfig contains result-cache configuration
type CacheConfig struct {
	TTL           time.Duration `json:"ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// ConnectivityConfig contains connectivity monitor configuration
type ConnectivityConfig struct {
	ProbeAddr     string        `json:"probe_addr"`
	ProbeInterval time.Duration `json:"probe_interval"`
	ProbeTimeout  time.Duration `json:"probe_timeout"`
}

// ResilienceConfig contains retry, breaker and timeout tunables. Backends
// may override individual fields via the Backends map; zero values fall
// back to the fleet-wide defaults.
type ResilienceConfig struct {
	RetryMaxAttempts        int           `json:"retry_max_attempts"`
	RetryUnknownMaxAttempts int           `json:"retry_unknown_max_attempts"`
	BackoffBase             time.Duration `json:"backoff_base"`
	BackoffCap              time.Duration `json:"backoff_cap"`
	BreakerFailureThreshold int           `json:"breaker_failure_threshold"`
	BreakerCoolDown         time.Duration `json:"breaker_cool_down"`
	BreakerCoolDownCap      time.Duration `json:"breaker_cool_down_cap"`
	OperationTimeout        time.Duration `json:"operation_timeout"`
	ReportWindow            time.Duration `json:"report_window"`

	Backends map[string]BackendOverrides `json:"backends,omitempty"`
}

// BackendOverrides carries per-backend tunables
type BackendOverrides struct {
	RetryMaxAttempts        int           `json:"retry_max_attempts,omitempty"`
	BreakerFailureThreshold int           `json:"breaker_failure_threshold,omitempty"`
	BreakerCoolDown         time.Duration `json:"breaker_cool_down,omitempty"`
	OperationTimeout        time.Duration `json:"operation_timeout,omitempty"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SamplingRate   float64 `json:"sampling_rate"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "127.0.0.1"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
		},
		Cache: CacheConfig{
			TTL:           getEnvDuration("CACHE_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute),
		},
		Connectivity: ConnectivityConfig{
			ProbeAddr:     getEnvString("CONNECTIVITY_PROBE_ADDR", "1.1.1.1:443"),
			ProbeInterval: getEnvDuration("CONNECTIVITY_PROBE_INTERVAL", 15*time.Second),
			ProbeTimeout:  getEnvDuration("CONNECTIVITY_PROBE_TIMEOUT", 3*time.Second),
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:        getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			RetryUnknownMaxAttempts: getEnvInt("RETRY_UNKNOWN_MAX_ATTEMPTS", 2),
			BackoffBase:             getEnvDuration("BACKOFF_BASE", 200*time.Millisecond),
			BackoffCap:              getEnvDuration("BACKOFF_CAP", 10*time.Second),
			BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
			BreakerCoolDown:         getEnvDuration("BREAKER_COOL_DOWN", 30*time.Second),
			BreakerCoolDownCap:      getEnvDuration("BREAKER_COOL_DOWN_CAP", 5*time.Minute),
			OperationTimeout:        getEnvDuration("OPERATION_TIMEOUT", 60*time.Second),
			ReportWindow:            getEnvDuration("REPORT_WINDOW", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			SamplingRate:   getEnvFloat("TRACING_SAMPLING_RATE", 1.0),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Resilience.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Resilience.BackoffBase <= 0 {
		return fmt.Errorf("backoff base must be positive")
	}
	if c.Resilience.BackoffCap < c.Resilience.BackoffBase {
		return fmt.Errorf("backoff cap must be at least the backoff base")
	}
	if c.Resilience.BreakerFailureThreshold < 1 {
		return fmt.Errorf("breaker failure threshold must be at least 1")
	}
	if c.Resilience.BreakerCoolDown <= 0 {
		return fmt.Errorf("breaker cool-down must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}

// ForBackend resolves the effective tunables for one backend
func (c *ResilienceConfig) ForBackend(backendID string) BackendOverrides {
	effective := BackendOverrides{
		RetryMaxAttempts:        c.RetryMaxAttempts,
		BreakerFailureThreshold: c.BreakerFailureThreshold,
		BreakerCoolDown:         c.BreakerCoolDown,
		OperationTimeout:        c.OperationTimeout,
	}

	override, ok := c.Backends[backendID]
	if !ok {
		return effective
	}

	if override.RetryMaxAttempts > 0 {
		effective.RetryMaxAttempts = override.RetryMaxAttempts
	}
	if override.BreakerFailureThreshold > 0 {
		effective.BreakerFailureThreshold = override.BreakerFailureThreshold
	}
	if override.BreakerCoolDown > 0 {
		effective.BreakerCoolDown = override.BreakerCoolDown
	}
	if override.OperationTimeout > 0 {
		effective.OperationTimeout = override.OperationTimeout
	}

	return effective
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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
