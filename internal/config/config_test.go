package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CARWASH_JWT_SECRET", "s")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 30, cfg.RateLimitBurst)
	assert.Equal(t, "carwash-service", cfg.ServiceName)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CARWASH_PORT", "9090")
	t.Setenv("CARWASH_STORE_DRIVER", " Postgres ")
	t.Setenv("CARWASH_DATABASE_URL", "postgres://localhost/carwash")
	t.Setenv("CARWASH_CACHE_TTL", "30s")
	t.Setenv("CARWASH_JWT_SECRET", "s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CARWASH_SESSION_TTL", "forever")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{StoreDriver: DriverMemory, JWTSecret: "s", SessionTTL: time.Hour}

	cases := map[string]func(c *Config){
		"missing secret":  func(c *Config) { c.JWTSecret = "" },
		"unknown driver":  func(c *Config) { c.StoreDriver = "sqlite" },
		"mysql needs dsn": func(c *Config) { c.StoreDriver = DriverMySQL },
		"zero session":    func(c *Config) { c.SessionTTL = 0 },
		"negative limit":  func(c *Config) { c.RateLimitBurst = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}
