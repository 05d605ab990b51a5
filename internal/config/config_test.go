package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.Device.ID)
	assert.Equal(t, 1.0, cfg.Device.TrustLevel)
	assert.Equal(t, 10, cfg.Detection.CreationWindowMinutes)
	assert.Equal(t, 0.5, cfg.Detection.SimilarityThreshold)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Equal(t, 10000, cfg.Audit.MaxHistories)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CYCLESYNC_DEVICE_ID", "phone-42")
	t.Setenv("CYCLESYNC_DEVICE_TRUST", "0.7")
	t.Setenv("CYCLESYNC_CREATION_WINDOW_MINUTES", "5")
	t.Setenv("CYCLESYNC_AUDIT_RETENTION_DAYS", "30")
	t.Setenv("CYCLESYNC_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "phone-42", cfg.Device.ID)
	assert.Equal(t, 0.7, cfg.Device.TrustLevel)
	assert.Equal(t, 5, cfg.Detection.CreationWindowMinutes)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	t.Setenv("CYCLESYNC_DEVICE_TRUST", "1.5")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cyclesync.yaml")
	content := []byte(`
device:
  id: tablet-7
  trust_level: 0.4
detection:
  creation_window_minutes: 15
audit:
  retention_days: 45
logging:
  level: warn
  format: text
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "tablet-7", cfg.Device.ID)
	assert.Equal(t, 0.4, cfg.Device.TrustLevel)
	assert.Equal(t, 15, cfg.Detection.CreationWindowMinutes)
	assert.Equal(t, 45, cfg.Audit.RetentionDays)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	// Unset file keys keep their defaults.
	assert.Equal(t, 0.5, cfg.Detection.SimilarityThreshold)
	assert.Equal(t, 10000, cfg.Audit.MaxHistories)
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigFile_EnvWinsOverFile(t *testing.T) {
	t.Setenv("CYCLESYNC_DEVICE_ID", "env-device")

	path := filepath.Join(t.TempDir(), "cyclesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  id: file-device\n"), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "env-device", cfg.Device.ID)
}
