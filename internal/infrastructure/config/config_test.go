package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	assert.Equal(t, []string{"rod", "chromedp", "playwright"}, cfg.Browser.Engines)
	assert.Equal(t, 10*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, 4, cfg.Workers.Size)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BROWSER_ENGINES", "chromedp,playwright")
	t.Setenv("BROWSER_HEADLESS", "true")
	t.Setenv("PROXY_CHECK_TIMEOUT", "3s")
	t.Setenv("WORKER_POOL_SIZE", "2")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_DEV", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"chromedp", "playwright"}, cfg.Browser.Engines)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Proxy.Timeout)
	assert.Equal(t, 2, cfg.Workers.Size)
	assert.Equal(t, "localhost:6379", cfg.Workers.RedisAddr)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "fleet:executions", cfg.Workers.RedisKey)
}

func TestLoadDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SCREENSHOTS_DIR=/tmp/shots\nPROXY_PROBE_URL=http://probe.local/\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SCREENSHOTS_DIR")
		os.Unsetenv("PROXY_PROBE_URL")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/shots", cfg.Storage.ScreenshotsDir)
	assert.Equal(t, "http://probe.local/", cfg.Proxy.ProbeURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Workers.Size = 0 }},
		{"no timeout", func(c *Config) { c.Proxy.Timeout = 0 }},
		{"no engines", func(c *Config) { c.Browser.Engines = nil }},
		{"missing executable", func(c *Config) { c.Browser.ExecutablePath = "/definitely/not/chrome" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRemoteOnlyIsValid(t *testing.T) {
	cfg := Default()
	cfg.Browser.Engines = nil
	cfg.Browser.RemoteURL = "http://worker:8000"
	assert.NoError(t, cfg.Validate())
}
