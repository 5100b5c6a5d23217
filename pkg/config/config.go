package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrymomot/quotagate/pkg/httpserver"
	"github.com/dmitrymomot/quotagate/pkg/pg"
	"github.com/dmitrymomot/quotagate/pkg/redis"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the gateway's process configuration.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"quotagate"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"` // memory, postgres or redis
	PlansFile    string `env:"PLANS_FILE"`                        // YAML plan catalog; compiled-in plans when empty
	DefaultPlan  string `env:"DEFAULT_PLAN" envDefault:"free"`
	UpgradeURL   string `env:"UPGRADE_URL"`
	APIMinPlan   string `env:"API_MIN_PLAN" envDefault:"pro"`     // lowest plan admitted to /v1/api; empty disables the tier check

	JWTSigningKey string `env:"JWT_SIGNING_KEY"`
	DevAuthHeader bool   `env:"AUTH_DEV_HEADER" envDefault:"false"` // trust X-User-ID, development only

	ResolverTimeout       time.Duration `env:"RESOLVER_STORE_TIMEOUT" envDefault:"2s"`
	RecorderRetries       uint64        `env:"USAGE_RECORD_RETRIES" envDefault:"3"`
	RecorderBackoff       time.Duration `env:"USAGE_RECORD_BACKOFF" envDefault:"50ms"`
	DispatcherConcurrency int64         `env:"USAGE_DISPATCH_CONCURRENCY" envDefault:"64"`
	DispatcherTimeout     time.Duration `env:"USAGE_DISPATCH_TIMEOUT" envDefault:"10s"`
	HistoryEnabled        bool          `env:"HISTORY_ENABLED" envDefault:"true"`
	HistoryBatchSize      int           `env:"HISTORY_BATCH_SIZE" envDefault:"100"`
	HistoryFlushInterval  time.Duration `env:"HISTORY_FLUSH_INTERVAL" envDefault:"500ms"`

	HTTP     httpserver.Config
	Postgres pg.Config
	Redis    redis.Config
}

// IsDevelopment reports whether the gateway runs in a development environment.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.ConnectionString == "" {
			return fmt.Errorf("%w: PG_CONN_URL is required for the postgres backend", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.Redis.ConnectionURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.StoreBackend)
	}

	if c.JWTSigningKey == "" && !c.DevAuthHeader {
		return fmt.Errorf("%w: JWT_SIGNING_KEY is required unless AUTH_DEV_HEADER is enabled", ErrInvalidConfig)
	}
	if c.DevAuthHeader && !c.IsDevelopment() {
		return fmt.Errorf("%w: AUTH_DEV_HEADER is only allowed in development", ErrInvalidConfig)
	}
	if c.UpgradeURL != "" {
		if _, err := url.ParseRequestURI(c.UpgradeURL); err != nil {
			return fmt.Errorf("%w: UPGRADE_URL: %v", ErrInvalidConfig, err)
		}
	}
	if c.DispatcherConcurrency <= 0 {
		return fmt.Errorf("%w: USAGE_DISPATCH_CONCURRENCY must be positive", ErrInvalidConfig)
	}
	if c.ResolverTimeout <= 0 {
		return fmt.Errorf("%w: RESOLVER_STORE_TIMEOUT must be positive", ErrInvalidConfig)
	}
	return nil
}

// Load reads .env files, parses the environment and validates the result.
func Load(envFiles ...string) (Config, error) {
	var cfg Config
	if err := LoadEnv(envFiles...); err != nil {
		return cfg, err
	}
	if err := Parse(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
