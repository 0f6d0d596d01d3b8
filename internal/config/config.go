package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Secrets   SecretsConfig
	Transfer  TransferConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string   `envconfig:"PORT" default:"8090"`
	Host         string   `envconfig:"HOST" default:"0.0.0.0"`
	AllowOrigins []string `envconfig:"ALLOW_ORIGINS" default:"*"`
}

// SandboxConfig holds sandbox API client configuration.
type SandboxConfig struct {
	BaseURL           string        `envconfig:"SANDBOX_API_URL" default:"http://localhost:8080/api/v1"`
	Timeout           time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"30s"`
	RequestsPerSecond float64       `envconfig:"SANDBOX_RPS" default:"0"`
	Burst             int           `envconfig:"SANDBOX_BURST" default:"0"`
}

// SecretsConfig holds environment-variable store configuration.
type SecretsConfig struct {
	DebounceWindow time.Duration `envconfig:"SECRETS_DEBOUNCE" default:"500ms"`
}

// TransferConfig holds transfer handle configuration.
type TransferConfig struct {
	HandleTTL time.Duration `envconfig:"TRANSFER_HANDLE_TTL" default:"2m"`
	MaxBytes  int64         `envconfig:"TRANSFER_MAX_BYTES" default:"104857600"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds inbound rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8090",
			Host:         "0.0.0.0",
			AllowOrigins: []string{"*"},
		},
		Sandbox: SandboxConfig{
			BaseURL: "http://localhost:8080/api/v1",
			Timeout: 30 * time.Second,
		},
		Secrets: SecretsConfig{
			DebounceWindow: 500 * time.Millisecond,
		},
		Transfer: TransferConfig{
			HandleTTL: 2 * time.Minute,
			MaxBytes:  100 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
