package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://promo@localhost/promo?sslmode=disable"

notification:
  channel: EMAIL_PROMOTION
  rate_limit_max: 5
  rate_limit_window: 2h
  pacing_delay: 250ms
  frontend_url: "https://shop.example.com"

scheduler:
  enabled: true
  sweep_time: "03:30"
  timezone: "UTC"

dispatch:
  workers: 8
  backlog_warn: 128

logging:
  level: debug
  redact_pii: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "postgres://promo@localhost/promo?sslmode=disable", cfg.Database.URL)

	assert.Equal(t, 5, cfg.Notification.RateLimitMax)
	assert.Equal(t, 2*time.Hour, cfg.Notification.RateLimitWindow)
	assert.Equal(t, 250*time.Millisecond, cfg.Notification.PacingDelay)
	assert.Equal(t, "https://shop.example.com", cfg.Notification.FrontendURL)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "03:30", cfg.Scheduler.SweepTime)
	loc, err := cfg.Scheduler.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 128, cfg.Dispatch.BacklogWarn)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Redact())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("{}"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.NotEmpty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, "EMAIL_PROMOTION", cfg.Notification.Channel)
	assert.Equal(t, 10, cfg.Notification.RateLimitMax)
	assert.Equal(t, time.Hour, cfg.Notification.RateLimitWindow)
	assert.Equal(t, 100*time.Millisecond, cfg.Notification.PacingDelay)
	assert.Equal(t, "00:01", cfg.Scheduler.SweepTime)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 64, cfg.Dispatch.BacklogWarn)
	assert.Equal(t, "postgres", cfg.Ledger.Backend)
	assert.Equal(t, "us-east-1", cfg.SES.Region)
	assert.True(t, cfg.Logging.Redact())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("FRONTEND_URL", "https://env.example.com")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "https://env.example.com", cfg.Notification.FrontendURL)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromEnvBadPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")

	_, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
