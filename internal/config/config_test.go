package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobandits/internal"
	"gobandits/internal/errors"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "BANDITS_STORE", "BANDITS_ROSTER", "DATABASE_URL", "BANDITS_SEED",
		"BANDITS_REPORT_TRIALS", "BANDITS_REPORT_WORKERS", "PORT",
		"DB_MAX_OPEN_CONNS", "DB_CONN_MAX_LIFETIME", "BANDITS_INVERSE_ITERATIONS",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store.Backend)
	assert.Equal(t, "bandits.json", cfg.Store.Roster)
	assert.Equal(t, internal.LogLevelInfo, cfg.Log.Level)
	assert.Equal(t, int64(0), cfg.Schedule.Seed)
	assert.Equal(t, 100, cfg.Schedule.InverseIterations)
	assert.Equal(t, 2000, cfg.Report.Trials)
	assert.Equal(t, 4, cfg.Report.Workers)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BANDITS_STORE", "postgres")
	t.Setenv("BANDITS_ROSTER", "nightly")
	t.Setenv("DATABASE_URL", "postgres://localhost/bandits?sslmode=disable")
	t.Setenv("BANDITS_SEED", "42")
	t.Setenv("BANDITS_INVERSE_ITERATIONS", "250")
	t.Setenv("BANDITS_REPORT_TRIALS", "500")
	t.Setenv("BANDITS_REPORT_WORKERS", "2")
	t.Setenv("PORT", "9000")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, internal.LogLevelDebug, cfg.Log.Level)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "nightly", cfg.Store.Roster)
	assert.Equal(t, int64(42), cfg.Schedule.EffectiveSeed())
	assert.Equal(t, 250, cfg.Schedule.InverseIterations)
	assert.Equal(t, 500, cfg.Report.Trials)
	assert.Equal(t, 2, cfg.Report.Workers)
	assert.Equal(t, "9000", cfg.Server.Port)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"BANDITS_STORE": "redis"}},
		{"postgres without url", map[string]string{"BANDITS_STORE": "postgres"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"zero workers", map[string]string{"BANDITS_REPORT_WORKERS": "0"}},
		{"negative trials", map[string]string{"BANDITS_REPORT_TRIALS": "-3"}},
		{"zero inverse iterations", map[string]string{"BANDITS_INVERSE_ITERATIONS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestEffectiveSeedTimeBased(t *testing.T) {
	assert.NotZero(t, ScheduleConfig{}.EffectiveSeed())
}
