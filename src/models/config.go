package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	Storage   MStorageConfig   `yaml:"storage"`
	Broadcast MBroadcastConfig `yaml:"broadcast"`
	Dedup     MDedupConfig     `yaml:"dedup"`
	Analytics MAnalyticsConfig `yaml:"analytics"`
	Network   MNetworkConfig   `yaml:"network"`
	Kinds     []string         `yaml:"kinds"`
}

type MStorageConfig struct {
	DBType              string `yaml:"db_type"`
	DBPath              string `yaml:"db_path"`
	DBConnectionString  string `yaml:"db_connection_string"`
	QueryTimeoutSeconds int    `yaml:"query_timeout_seconds"`
	WindowDays          int    `yaml:"window_days"`
}

type MBroadcastConfig struct {
	CadenceSeconds        int    `yaml:"cadence_seconds"`
	SendTimeoutMillis     int    `yaml:"send_timeout_ms"`
	ClientQueueDepth      int    `yaml:"client_queue_depth"`
	HistoryDepth          int    `yaml:"history_depth"`
	RefreshTimeoutSeconds int    `yaml:"refresh_timeout_seconds"`
	SkipWhenIdle          bool   `yaml:"skip_when_no_subscribers"`
	BusinessDaysOnly      bool   `yaml:"business_days_only"`
	CalendarMIC           string `yaml:"calendar_mic"`
}

type MDedupConfig struct {
	SuccessTTLSeconds    int `yaml:"success_ttl_seconds"`
	FailureTTLSeconds    int `yaml:"failure_ttl_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type MAnalyticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"` // Optional
}

type MNetworkConfig struct {
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"`
	EgressProxy    string `yaml:"egress_proxy"`
	UserAgent      string `yaml:"user_agent"`
}
