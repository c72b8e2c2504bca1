package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Gateway       GatewayConfig       `yaml:"gateway"`
	Control       ControlConfig       `yaml:"control"`
	Redis         RedisConfig         `yaml:"redis"`
	Etcd          EtcdConfig          `yaml:"etcd"`
	Observability ObservabilityConfig `yaml:"observability"`
	Limits        LimitsConfig        `yaml:"limits"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
}

type GatewayConfig struct {
	Address         string        `yaml:"address"`
	GRPCAddress     string        `yaml:"grpc_address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	EnableH2C       bool          `yaml:"enable_h2c"`
	ConsistencyMode string        `yaml:"consistency_mode"` // "fast" (in-process store) or "strong" (Redis)
}

type ControlConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	Database     int           `yaml:"database"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Prefix      string        `yaml:"prefix"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	LogLevel       string `yaml:"log_level"`
}

type LimitsConfig struct {
	PolicyFile      string        `yaml:"policy_file"`
	FailureMode     string        `yaml:"failure_mode"` // "open" or "closed"
	StoreTimeout    time.Duration `yaml:"store_timeout"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	TenantOverrides bool          `yaml:"tenant_overrides"`
	OverrideRefresh time.Duration `yaml:"override_refresh"`
}

type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenDuration     time.Duration `yaml:"open_duration"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Address:         getEnv("QUOTAGATE_GATEWAY_ADDRESS", ":8080"),
			GRPCAddress:     getEnv("QUOTAGATE_GATEWAY_GRPC_ADDRESS", ":9080"),
			ReadTimeout:     getEnvDuration("QUOTAGATE_GATEWAY_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("QUOTAGATE_GATEWAY_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("QUOTAGATE_GATEWAY_SHUTDOWN_TIMEOUT", 30*time.Second),
			EnableH2C:       getEnvBool("QUOTAGATE_GATEWAY_ENABLE_H2C", false),
			ConsistencyMode: getEnv("QUOTAGATE_CONSISTENCY_MODE", "strong"),
		},
		Control: ControlConfig{
			Address:         getEnv("QUOTAGATE_CONTROL_ADDRESS", ":8081"),
			ReadTimeout:     getEnvDuration("QUOTAGATE_CONTROL_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("QUOTAGATE_CONTROL_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("QUOTAGATE_CONTROL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnv("QUOTAGATE_REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnv("QUOTAGATE_REDIS_PASSWORD", ""),
			Database:     getEnvInt("QUOTAGATE_REDIS_DATABASE", 0),
			PoolSize:     getEnvInt("QUOTAGATE_REDIS_POOL_SIZE", 100),
			MinIdleConns: getEnvInt("QUOTAGATE_REDIS_MIN_IDLE_CONNS", 10),
			MaxRetries:   getEnvInt("QUOTAGATE_REDIS_MAX_RETRIES", 1),
			DialTimeout:  getEnvDuration("QUOTAGATE_REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvDuration("QUOTAGATE_REDIS_READ_TIMEOUT", 200*time.Millisecond),
			WriteTimeout: getEnvDuration("QUOTAGATE_REDIS_WRITE_TIMEOUT", 200*time.Millisecond),
		},
		Etcd: EtcdConfig{
			Endpoints:   getEnvStringSlice("QUOTAGATE_ETCD_ENDPOINTS", []string{"localhost:2379"}),
			DialTimeout: getEnvDuration("QUOTAGATE_ETCD_DIAL_TIMEOUT", 5*time.Second),
			Username:    getEnv("QUOTAGATE_ETCD_USERNAME", ""),
			Password:    getEnv("QUOTAGATE_ETCD_PASSWORD", ""),
			Prefix:      getEnv("QUOTAGATE_ETCD_PREFIX", "/quotagate/tenants/"),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvBool("QUOTAGATE_METRICS_ENABLED", true),
			TracingEnabled: getEnvBool("QUOTAGATE_TRACING_ENABLED", false),
			JaegerEndpoint: getEnv("QUOTAGATE_JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName:    getEnv("QUOTAGATE_SERVICE_NAME", "quotagate-gateway"),
			ServiceVersion: getEnv("QUOTAGATE_SERVICE_VERSION", "dev"),
			LogLevel:       getEnv("QUOTAGATE_LOG_LEVEL", "info"),
		},
		Limits: LimitsConfig{
			PolicyFile:      getEnv("QUOTAGATE_POLICY_FILE", ""),
			FailureMode:     getEnv("QUOTAGATE_FAILURE_MODE", "open"),
			StoreTimeout:    getEnvDuration("QUOTAGATE_STORE_TIMEOUT", 250*time.Millisecond),
			SweepInterval:   getEnvDuration("QUOTAGATE_SWEEP_INTERVAL", time.Minute),
			TenantOverrides: getEnvBool("QUOTAGATE_TENANT_OVERRIDES", false),
			OverrideRefresh: getEnvDuration("QUOTAGATE_OVERRIDE_REFRESH", 30*time.Second),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvBool("QUOTAGATE_CIRCUIT_BREAKER_ENABLED", true),
				FailureThreshold: getEnvInt("QUOTAGATE_CIRCUIT_BREAKER_FAILURE_THRESHOLD", 10),
				OpenDuration:     getEnvDuration("QUOTAGATE_CIRCUIT_BREAKER_OPEN_DURATION", 5*time.Second),
				HalfOpenMaxCalls: getEnvInt("QUOTAGATE_CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS", 5),
			},
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
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

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
