package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store driver names.
const (
	StoreDriverRest     = "rest"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config is the full service configuration, loaded from the environment.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"be-board-approvals"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Port            int           `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// StoreDriver selects the document store backend: rest, postgres or
	// memory (local development only).
	StoreDriver string `envconfig:"STORE_DRIVER" default:"rest"`
	StoreURL    string `envconfig:"STORE_URL"`
	StoreAPIKey string `envconfig:"STORE_API_KEY"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// NATSURL is optional; without it, notifications are dropped.
	NATSURL string `envconfig:"NATS_URL"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads configuration from the environment and validates the selected
// store backend has what it needs.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	switch cfg.StoreDriver {
	case StoreDriverRest:
		if cfg.StoreURL == "" || cfg.StoreAPIKey == "" {
			return nil, fmt.Errorf("config: STORE_URL and STORE_API_KEY are required for the rest store driver")
		}
	case StoreDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("config: POSTGRES_DSN is required for the postgres store driver")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("config: unknown store driver %q", cfg.StoreDriver)
	}

	return &cfg, nil
}
