package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "benchcore.db", cfg.Storage.SQLitePath)
	require.Equal(t, "benchcore", cfg.Storage.Redis.Prefix)
	require.Equal(t, "memory", cfg.Blob.Driver)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, 7, cfg.Policy.LowStockDueDays)
	require.Equal(t, 14, cfg.Policy.CompositeShelfLifeDays)
	require.Equal(t, time.Hour, cfg.Sweep.Interval)
	require.False(t, cfg.Log.Trace)
	threshold, err := cfg.Policy.Threshold()
	require.NoError(t, err)
	require.Equal(t, "100", threshold.String())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "benchcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: postgres
  postgres_dsn: postgres://db/bench
policy:
  low_stock_threshold: "25.5"
  expiring_window_days: 10
log:
  format: text
`), 0o600))
	t.Setenv("BENCHCORE_HTTP_ADDR", ":9090")
	t.Setenv("BENCHCORE_SWEEP_INTERVAL", "15m")
	t.Setenv("BENCHCORE_STORAGE_REDIS_DB", "3")
	t.Setenv("BENCHCORE_LOG_TRACE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Storage.Driver)
	require.Equal(t, "postgres://db/bench", cfg.Storage.PostgresDSN)
	require.Equal(t, 10, cfg.Policy.ExpiringWindowDays)
	require.Equal(t, "text", cfg.Log.Format)
	require.True(t, cfg.Log.Trace)
	require.Equal(t, ":9090", cfg.HTTP.Addr)
	require.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	require.Equal(t, 3, cfg.Storage.Redis.DB)
	threshold, err := cfg.Policy.Threshold()
	require.NoError(t, err)
	require.Equal(t, "25.5", threshold.String())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"BENCHCORE_STORAGE_DRIVER":             "mysql",
		"BENCHCORE_BLOB_DRIVER":                "s3",
		"BENCHCORE_LOG_FORMAT":                 "xml",
		"BENCHCORE_POLICY_LOW_STOCK_THRESHOLD": "lots",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load("")
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}
