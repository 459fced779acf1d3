package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval.Std())
	assert.Equal(t, time.Hour, cfg.Scheduler.ThresholdCooldown.Std())
	assert.Equal(t, 30*time.Minute, cfg.Engine.ExecutionTimeout.Std())
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout.Std())
	assert.Equal(t, 5, cfg.Webhook.RatePerSec)
	assert.NotEmpty(t, cfg.DB.Path)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
log:
  level: debug
scheduler:
  poll_interval: 10s
webhook:
  rate_per_sec: 2
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.PollInterval.Std())
	assert.Equal(t, 2, cfg.Webhook.RatePerSec)
	// Unset keys keep their defaults.
	assert.Equal(t, time.Hour, cfg.Scheduler.ThresholdCooldown.Std())
	assert.Equal(t, 30*time.Minute, cfg.Engine.ExecutionTimeout.Std())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  poll_interval: soon\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("FLEET_TASKS_DATA", "/var/lib/fleet-tasks")
	cfg := Default()
	assert.Equal(t, filepath.Join("/var/lib/fleet-tasks", "fleet-tasks.db"), cfg.DB.Path)
}
