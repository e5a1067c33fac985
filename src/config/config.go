package config

import (
	"fmt"
	"os"

	"insight-stream/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills the tuning knobs a deployment usually leaves untouched.
func (c *Config) applyDefaults() {
	if c.Broadcast.CadenceSeconds == 0 {
		c.Broadcast.CadenceSeconds = 5
	}
	if c.Broadcast.SendTimeoutMillis == 0 {
		c.Broadcast.SendTimeoutMillis = 2000
	}
	if c.Broadcast.ClientQueueDepth == 0 {
		c.Broadcast.ClientQueueDepth = 256
	}
	if c.Broadcast.HistoryDepth == 0 {
		c.Broadcast.HistoryDepth = 32
	}
	if c.Broadcast.RefreshTimeoutSeconds == 0 {
		c.Broadcast.RefreshTimeoutSeconds = 30
	}
	if c.Dedup.SuccessTTLSeconds == 0 {
		c.Dedup.SuccessTTLSeconds = 4
	}
	if c.Dedup.FailureTTLSeconds == 0 {
		c.Dedup.FailureTTLSeconds = 1
	}
	if c.Dedup.SweepIntervalSeconds == 0 {
		c.Dedup.SweepIntervalSeconds = 60
	}
	if c.Storage.QueryTimeoutSeconds == 0 {
		c.Storage.QueryTimeoutSeconds = 10
	}
	if c.Storage.WindowDays == 0 {
		c.Storage.WindowDays = 30
	}
	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 15
	}
	if c.Network.MaxRetries == 0 {
		c.Network.MaxRetries = 3
	}
	if len(c.Kinds) == 0 {
		for _, k := range models.AllKinds() {
			c.Kinds = append(c.Kinds, string(k))
		}
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.DBType == "postgres" && c.Storage.DBConnectionString == "" {
		return fmt.Errorf("connection string cannot be empty for postgres")
	}

	// Validate Broadcast configuration
	if c.Broadcast.CadenceSeconds <= 0 {
		return fmt.Errorf("broadcast cadence must be greater than 0")
	}
	if c.Broadcast.ClientQueueDepth <= 0 {
		return fmt.Errorf("client queue depth must be greater than 0")
	}
	if c.Broadcast.SendTimeoutMillis <= 0 {
		return fmt.Errorf("send timeout must be greater than 0")
	}
	if c.Broadcast.RefreshTimeoutSeconds <= 0 {
		return fmt.Errorf("refresh timeout must be greater than 0")
	}
	if c.Broadcast.BusinessDaysOnly && c.Broadcast.CalendarMIC == "" {
		return fmt.Errorf("calendar_mic is required when business_days_only is set")
	}

	// Validate Dedup configuration
	if c.Dedup.SuccessTTLSeconds <= 0 || c.Dedup.FailureTTLSeconds <= 0 {
		return fmt.Errorf("dedup TTLs must be greater than 0")
	}
	if c.Dedup.FailureTTLSeconds > c.Dedup.SuccessTTLSeconds {
		return fmt.Errorf("failure TTL must not exceed success TTL")
	}

	// Validate Analytics configuration
	if c.Analytics.Enabled && c.Analytics.BaseURL == "" {
		return fmt.Errorf("analytics base_url is required when analytics is enabled")
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Validate tracked kinds
	for i, kind := range c.Kinds {
		if !models.MSnapshotKind(kind).Valid() {
			return fmt.Errorf("kind %d is not a known snapshot kind: %q", i, kind)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// TrackedKinds returns the configured kinds as typed values.
func (c *Config) TrackedKinds() []models.MSnapshotKind {
	kinds := make([]models.MSnapshotKind, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		kinds = append(kinds, models.MSnapshotKind(k))
	}
	return kinds
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
