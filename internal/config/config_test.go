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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Gate.MaxConcurrent)
	assert.Equal(t, 15*time.Second, cfg.Gate.PollInterval)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 2, cfg.Reconcile.RetryCeiling)
	assert.Equal(t, 30*time.Minute, cfg.Reconcile.RetryDelay)
	assert.Equal(t, "34", cfg.Provider.CountryCode)
	assert.Equal(t, []string{"Programado", "Reintentar"}, cfg.Dialer.Statuses)
	assert.Empty(t, cfg.Dialer.CallingHours.Start)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
store:
  driver: memory
provider:
  name: mock
  default_assistant: ventas
  assistants:
    ventas: asst-123
gate:
  max_concurrent: 4
dialer:
  calling_hours:
    start: "09:00"
    end: "21:00"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("DIALER_GATE_MAX_POLLS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Gate.MaxConcurrent)
	assert.Equal(t, 7, cfg.Gate.MaxPolls)
	assert.Equal(t, "09:00", cfg.Dialer.CallingHours.Start)
	assert.Equal(t, "Europe/Madrid", cfg.Dialer.CallingHours.TimeZone)
	assert.Equal(t, "asst-123", cfg.Provider.AssistantID(""))
	assert.Equal(t, "asst-123", cfg.Provider.AssistantID("Ventas"))
	assert.Equal(t, "asst-123", cfg.Provider.AssistantID("unknown"))
}

func TestValidateRejectsUnsafeSettings(t *testing.T) {
	t.Setenv("DIALER_GATE_MAX_CONCURRENT", "0")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("DIALER_GATE_MAX_CONCURRENT", "10")
	t.Setenv("DIALER_STORE_DRIVER", "sqlite")
	_, err = Load("")
	require.Error(t, err)
}
