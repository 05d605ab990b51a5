// Package config holds the engine configuration: device identity, detection
// heuristics, audit retention, and logging.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Device    DeviceConfig    `json:"device" yaml:"device"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// DeviceConfig identifies this device in conflict and audit metadata.
type DeviceConfig struct {
	ID         string  `json:"id" yaml:"id" validate:"required"`
	TrustLevel float64 `json:"trust_level" yaml:"trust_level" validate:"gte=0,lte=1"`
}

// DetectionConfig tunes the concurrent-creation heuristic.
type DetectionConfig struct {
	CreationWindowMinutes int     `json:"creation_window_minutes" yaml:"creation_window_minutes" validate:"gt=0"`
	SimilarityThreshold   float64 `json:"similarity_threshold" yaml:"similarity_threshold" validate:"gt=0,lte=1"`
}

// AuditConfig bounds the audit trail.
type AuditConfig struct {
	RetentionDays int `json:"retention_days" yaml:"retention_days" validate:"gt=0"`
	MaxHistories  int `json:"max_histories" yaml:"max_histories" validate:"gt=0"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `json:"format" yaml:"format" validate:"oneof=json text"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:         defaultDeviceID(),
			TrustLevel: 1.0,
		},
		Detection: DetectionConfig{
			CreationWindowMinutes: 10,
			SimilarityThreshold:   0.5,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			MaxHistories:  10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional .env file,
// and environment variable overrides, then validates it.
func LoadConfig() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file over the defaults, applies
// environment overrides, and validates the result.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration structure.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CYCLESYNC_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := getEnvFloat("CYCLESYNC_DEVICE_TRUST"); v != nil {
		cfg.Device.TrustLevel = *v
	}
	if v := getEnvInt("CYCLESYNC_CREATION_WINDOW_MINUTES"); v != nil {
		cfg.Detection.CreationWindowMinutes = *v
	}
	if v := getEnvFloat("CYCLESYNC_SIMILARITY_THRESHOLD"); v != nil {
		cfg.Detection.SimilarityThreshold = *v
	}
	if v := getEnvInt("CYCLESYNC_AUDIT_RETENTION_DAYS"); v != nil {
		cfg.Audit.RetentionDays = *v
	}
	if v := getEnvInt("CYCLESYNC_AUDIT_MAX_HISTORIES"); v != nil {
		cfg.Audit.MaxHistories = *v
	}
	if v := os.Getenv("CYCLESYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CYCLESYNC_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func getEnvInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func getEnvFloat(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func defaultDeviceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown-device"
}
