// Package config loads the ledger engine's tunables from the
// environment, following packfinderz-backend's pkg/config shape: a
// struct-of-structs processed in one call by envconfig.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every variable this process recognizes.
const EnvPrefix = "COINVAULT"

// Config is the complete set of options recognized by spec.md §6.
type Config struct {
	App         AppConfig
	DB          DBConfig
	Pool        PoolConfig
	Retry       RetryConfig
	Idempotency IdempotencyConfig
	History     HistoryConfig
}

type AppConfig struct {
	Env      string `envconfig:"ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type DBConfig struct {
	Source            string        `envconfig:"DB_SOURCE" required:"true"`
	ConnectionTimeout time.Duration `envconfig:"CONNECTION_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"10s"`
	StatementTimeout  time.Duration `envconfig:"STATEMENT_TIMEOUT" default:"30s"`
}

type PoolConfig struct {
	MinConnections int32 `envconfig:"MIN_CONNECTIONS" default:"10"`
	MaxConnections int32 `envconfig:"MAX_CONNECTIONS" default:"50"`
}

type RetryConfig struct {
	MaxAttempts uint64        `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	BaseBackoff time.Duration `envconfig:"RETRY_BASE_BACKOFF" default:"100ms"`
	Jitter      time.Duration `envconfig:"RETRY_JITTER" default:"100ms"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

type HistoryConfig struct {
	DefaultLimit int `envconfig:"HISTORY_DEFAULT_LIMIT" default:"50"`
	MaxLimit     int `envconfig:"HISTORY_MAX_LIMIT" default:"100"`
}

// Load reads and validates Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	// Each section is processed on its own so that its variables are named
	// COINVAULT_<TAG> rather than COINVAULT_<SECTION>_<TAG>.
	for _, section := range []any{&cfg.App, &cfg.DB, &cfg.Pool, &cfg.Retry, &cfg.Idempotency, &cfg.History} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if cfg.DB.Source == "" {
		return nil, fmt.Errorf("parsing config: %s_DB_SOURCE must not be empty", EnvPrefix)
	}
	return &cfg, nil
}
