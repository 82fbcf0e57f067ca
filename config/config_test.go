package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DBDriver:         "sqlite",
		DBDSN:            ":memory:",
		MergeMaxAttempts: 3,
		MergeTimeout:     time.Second,
		RateLimitRPS:     5,
		RateLimitBurst:   10,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", ":memory:")
	t.Setenv("MERGE_TIMEOUT", "750ms")
	t.Setenv("SERVICE_CHARGE_PERCENT", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.MergeMaxAttempts)
	assert.Equal(t, 750*time.Millisecond, cfg.MergeTimeout)
	assert.Equal(t, 10.0, cfg.ServiceChargePercent)
	assert.Equal(t, "table-orders", cfg.RedisChannel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.DBDriver = "oracle" }, wantErr: true},
		{name: "missing dsn", mutate: func(c *Config) { c.DBDSN = "" }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.MergeMaxAttempts = 0 }, wantErr: true},
		{name: "negative service charge", mutate: func(c *Config) { c.ServiceChargePercent = -1 }, wantErr: true},
		{name: "no rate limit", mutate: func(c *Config) { c.RateLimitRPS = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
