package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const Prefix = "CARWASH"

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	StoreDriver        string        `envconfig:"STORE_DRIVER" default:"memory"`
	DatabaseURL        string        `envconfig:"DATABASE_URL"`
	RedisAddr          string        `envconfig:"REDIS_ADDR"`
	RelayChannel       string        `envconfig:"RELAY_CHANNEL" default:"carwash:jobs"`
	CacheTTL           time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	JWTSecret          string        `envconfig:"JWT_SECRET"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"8h"`
	CatalogPath        string        `envconfig:"CATALOG_PATH"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MIN" default:"120"`
	RateLimitBurst     int           `envconfig:"RATE_LIMIT_BURST" default:"30"`
	LogMode            string        `envconfig:"LOG_MODE" default:"prod"`
	ServiceName        string        `envconfig:"SERVICE_NAME" default:"carwash-service"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	return cfg, nil
}

// Validate checks the settings that serve needs. Migrations only need the
// store settings, so they call ValidateStore instead.
func (c Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("CARWASH_JWT_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("CARWASH_SESSION_TTL must be positive")
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limits must not be negative")
	}
	return nil
}

func (c Config) ValidateStore() error {
	switch c.StoreDriver {
	case DriverMemory:
		return nil
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.Errorf("CARWASH_DATABASE_URL is required for the %s driver", c.StoreDriver)
		}
		return nil
	default:
		return errors.Errorf("unknown store driver %q", c.StoreDriver)
	}
}
