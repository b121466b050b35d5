package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("STREAMCTL_CONFIG", "")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(home))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	SetConfigFile("")
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)

		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, "/metrics", cfg.Metrics.Path)
		assert.True(t, cfg.Health.Enabled)

		assert.Equal(t, RegistryFile, cfg.Registry.Backend)
		assert.Equal(t, filepath.Join(DefaultDataDir(), "registry"), cfg.Registry.Path)

		assert.False(t, cfg.Tracking.Enabled)
		assert.Equal(t, 4, cfg.Tracking.Concurrency)
		assert.Equal(t, time.Minute, cfg.Tracking.LeaseTTL)
		assert.Equal(t, "streamctl:tracking:lease", cfg.Redis.LeaseKey)
		assert.Empty(t, cfg.Redis.Addr)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
			"storage": map[string]any{
				"s3": map[string]any{"bucket": "artifacts"},
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "artifacts", cfg.Storage.S3.Bucket)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("STREAMCTL_PORT", "3000")
		t.Setenv("STREAMCTL_LOG_LEVEL", "warn")
		t.Setenv("STREAMCTL_METRICS_ENABLED", "false")
		t.Setenv("STREAMCTL_TRACKING_RATE_LIMIT", "2.5")
		t.Setenv("STREAMCTL_REDIS_ADDR", "localhost:6379")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 2.5, cfg.Tracking.RateLimit)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("STREAMCTL_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{
			"server": map[string]any{"port": 5000},
		})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		isolate(t)
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
registry:
  backend: SQLite
  path: /tmp/apps.db
tracking:
  enabled: true
  interval: 15s
`), 0o644))
		SetConfigFile(path)
		t.Cleanup(func() { SetConfigFile("") })

		t.Setenv("STREAMCTL_SERVER_PORT", "7171")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7171, cfg.Server.Port, "env beats file")
		assert.Equal(t, RegistrySQLite, cfg.Registry.Backend)
		assert.Equal(t, "/tmp/apps.db", cfg.Registry.Path)
		assert.True(t, cfg.Tracking.Enabled)
		assert.Equal(t, 15*time.Second, cfg.Tracking.Interval)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		isolate(t)
		t.Setenv("STREAMCTL_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load(ctx)
		assert.Error(t, err)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Load(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoad_Invalid(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{"bad backend", map[string]any{"registry": map[string]any{"backend": "etcd"}}},
		{"empty file path", map[string]any{"registry": map[string]any{"path": ""}}},
		{"sqlite without target", map[string]any{"registry": map[string]any{"backend": "sqlite", "path": ""}}},
		{"port range", map[string]any{"server": map[string]any{"port": 70000}}},
		{"tracking interval", map[string]any{"tracking": map[string]any{"enabled": true, "interval": "0s"}}},
		{"lease ttl too short", map[string]any{"tracking": map[string]any{"lease_ttl": "2ns"}}},
		{"lease ttl zero", map[string]any{"tracking": map[string]any{"lease_ttl": "0s"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := Load(ctx, tt.overrides)
			assert.Error(t, err)
		})
	}
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("STREAMCTL_READ_TIMEOUT", "45s")
	t.Setenv("STREAMCTL_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}

func TestConfigReload(t *testing.T) {
	isolate(t)
	ctx := context.Background()

	cfg1, err := Load(ctx)
	require.NoError(t, err)
	initialPort := cfg1.Server.Port

	cfg2, err := Load(ctx, map[string]any{
		"server": map[string]any{"port": initialPort + 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, initialPort+1000, cfg2.Server.Port)
	assert.Equal(t, cfg2.Server.Port, GetConfig().Server.Port)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, "STREAMCTL_")
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}

	assert.True(t, names["STREAMCTL_LOG_LEVEL"])
	assert.True(t, names["STREAMCTL_PORT"])
	assert.True(t, names["STREAMCTL_HOST"])
	assert.True(t, names["STREAMCTL_REGISTRY_BACKEND"])
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"a": 1,
		"b": map[string]any{"c": "x", "d": map[string]any{"e": true}},
	})
	assert.Equal(t, map[string]any{"a": 1, "b.c": "x", "b.d.e": true}, got)
}

func TestGetUserConfigPaths(t *testing.T) {
	paths := getUserConfigPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[len(paths)-1])
}
