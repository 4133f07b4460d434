package config

import (
	"encoding/json"
	"os"
	"time"
)

// ServerConfig holds the HTTP adapter settings
type ServerConfig struct {
	Addr      string `json:"addr"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	JobLog    string `json:"job_log"`
	CORS      bool   `json:"cors"`
}

// ExecutorConfig holds job execution settings
type ExecutorConfig struct {
	MaxWait         time.Duration `json:"max_wait"`
	RefreshInterval time.Duration `json:"refresh_interval"`
	Retention       time.Duration `json:"retention"`
	MaxCachedJobs   int           `json:"max_cached_jobs"`
	MaxConcurrent   int           `json:"max_concurrent"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// CacheConfig selects the outcome mirror backend
type CacheConfig struct {
	Backend string      `json:"backend"` // none, inmemory, redis
	Redis   RedisConfig `json:"redis"`
}

// TelemetryConfig holds trace export settings
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// DispatcherConfig holds batch dispatcher settings
type DispatcherConfig struct {
	BaseURL   string `json:"base_url"`
	AuthToken string `json:"auth_token"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Server     ServerConfig     `json:"server"`
	Executor   ExecutorConfig   `json:"executor"`
	Cache      CacheConfig      `json:"cache"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
	Dispatcher DispatcherConfig `json:"dispatcher"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			LogLevel:  "info",
			LogFormat: "text",
			CORS:      true,
		},
		Executor: ExecutorConfig{
			MaxWait:         5 * time.Second,
			RefreshInterval: 3 * time.Second,
			Retention:       time.Hour,
			MaxCachedJobs:   10000,
		},
		Cache: CacheConfig{
			Backend: "none",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "pulsar",
			SampleRate:  1.0,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PULSAR_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PULSAR_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("PULSAR_LOG_FORMAT"); v != "" {
		cfg.Server.LogFormat = v
	}
	if v := os.Getenv("PULSAR_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.MaxWait = d
		}
	}
	if v := os.Getenv("PULSAR_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("PULSAR_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("PULSAR_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("PULSAR_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
	if v := os.Getenv("IVCAP_BASE_URL"); v != "" {
		cfg.Dispatcher.BaseURL = v
	}
	if v := os.Getenv("IVCAP_AUTH_TOKEN"); v != "" {
		cfg.Dispatcher.AuthToken = v
	}
}
