package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 500*time.Millisecond, cfg.LeaderboardCacheTTL)
	assert.Equal(t, "challengequest.events", cfg.EventsExchange)
	assert.Equal(t, 10, cfg.EventMaxAttempts)
	assert.Equal(t, int64(1000), cfg.DefaultLevelSpan)
	assert.False(t, cfg.R2Enabled())
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"postgres needs dsn", map[string]string{"JWT_SECRET": "x"}, "DATABASE_URL"},
		{"jwt secret required", map[string]string{"STORE_DRIVER": "memory"}, "JWT_SECRET"},
		{"bad driver", map[string]string{"STORE_DRIVER": "sqlite", "JWT_SECRET": "x"}, "STORE_DRIVER"},
		{"bad duration", map[string]string{"STORE_DRIVER": "memory", "JWT_SECRET": "x", "JWT_TTL": "soon"}, "JWT_TTL"},
		{"bad int", map[string]string{"STORE_DRIVER": "memory", "JWT_SECRET": "x", "BCRYPT_COST": "high"}, "BCRYPT_COST"},
		{"non-positive span", map[string]string{"STORE_DRIVER": "memory", "JWT_SECRET": "x", "DEFAULT_LEVEL_SPAN": "0"}, "DEFAULT_LEVEL_SPAN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"DATABASE_URL", "STORE_DRIVER", "JWT_SECRET", "JWT_TTL", "BCRYPT_COST", "DEFAULT_LEVEL_SPAN"} {
				t.Setenv(k, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}
