package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	// A named file that does not exist is an error; an unnamed lookup is not.
	require.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())

	assert.Equal(t, 5*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 4, cfg.Executor.MaxConcurrent)
	assert.Equal(t, 1<<20, cfg.Executor.MaxOutputBytes)
	assert.Equal(t, int64(10_000_000), cfg.Executor.MaxSteps)
	assert.Equal(t, 200, cfg.Executor.MaxRecursion)
	assert.Equal(t, 256<<10, cfg.Executor.MaxSourceBytes)

	assert.Equal(t, "./data/datasets", cfg.Datasets.Dir)
	assert.Equal(t, "./data/mako.db", cfg.Storage.Path)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9100
  environment: production
executor:
  timeout: 2s
log:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, 2*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 4, cfg.Executor.MaxConcurrent)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAKO_SERVER_PORT", "9200")
	t.Setenv("MAKO_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad environment", map[string]string{"MAKO_SERVER_ENVIRONMENT": "staging"}, "server.environment"},
		{"bad port", map[string]string{"MAKO_SERVER_PORT": "70000"}, "server.port"},
		{"bad level", map[string]string{"MAKO_LOG_LEVEL": "loud"}, "log.level"},
		{"bad timeout", map[string]string{"MAKO_EXECUTOR_TIMEOUT": "0s"}, "executor.timeout"},
		{"bad concurrency", map[string]string{"MAKO_EXECUTOR_MAX_CONCURRENT": "-1"}, "executor.max_concurrent"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			for k, v := range c.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestLogLevel(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "warn"}}
	assert.Equal(t, "WARN", cfg.LogLevel().String())
	cfg.Log.Level = "unknown"
	assert.Equal(t, "INFO", cfg.LogLevel().String())
}
