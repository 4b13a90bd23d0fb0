// Package config provides the two configuration layers of the engine:
// the service configuration (listener, provider, audit sink, rate
// limits) loaded through Viper, and the declarative pipeline documents
// resolved against the embedded presets.
package config

// Config is the top-level service configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Pipeline selects what the engine runs: a preset name, a document
	// path, or both (the document overlays the preset).
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`

	// Provider configures the remote classifier used by model-assisted
	// guardrails. Optional: pattern-only pipelines never contact it.
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`

	// Audit configures where audit events are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Conversation configures the conversation store.
	Conversation ConversationConfig `yaml:"conversation" mapstructure:"conversation"`

	// Auth configures optional API-key authentication on the HTTP facade.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g. "127.0.0.1:8600").
	// Defaults to localhost only; set ":8600" explicitly for network access.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// LogFormat selects "text" or "json" slog output.
	LogFormat string `yaml:"log_format" mapstructure:"log_format" validate:"omitempty,oneof=text json"`

	// AllowedOrigins is the CORS allowlist. Empty denies all
	// cross-origin browser requests.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PipelineConfig selects the pipeline the engine runs.
type PipelineConfig struct {
	// Preset is the name of an embedded pipeline template
	// (basic, customer_service, medical, financial, educational).
	Preset string `yaml:"preset" mapstructure:"preset"`

	// Document is the path to a YAML/JSON pipeline document. When both
	// Document and Preset are set, the document overlays the preset;
	// the document may also name its own preset internally.
	Document string `yaml:"document" mapstructure:"document"`
}

// ProviderConfig configures the remote classifier endpoint.
//
// The API key itself never appears in configuration: only the NAME of
// the environment variable holding it does. The secrets accessor reads
// the variable at client construction.
type ProviderConfig struct {
	// BaseURL is the classifier service base URL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// APIKeyEnv names the environment variable holding the API key.
	// Defaults to STINGER_PROVIDER_API_KEY.
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`

	// TimeoutMs bounds one HTTP round trip to the provider.
	// Defaults to 10000.
	TimeoutMs int `yaml:"timeout_ms" mapstructure:"timeout_ms" validate:"omitempty,min=1"`
}

// AuditConfig configures audit event output.
type AuditConfig struct {
	// Output selects the sink:
	// "stdout", "memory", "file://<absolute-dir>", or
	// "sqlite://<absolute-path>". Defaults to "stdout".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`

	// ChannelSize is the audit buffer capacity. At capacity the oldest
	// event is dropped and counted. Defaults to 1000.
	ChannelSize int `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`

	// BatchSize is the number of events batched per sink write.
	// Defaults to 100.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`

	// FlushInterval is how often pending events are flushed (e.g. "1s").
	// Defaults to "1s".
	FlushInterval string `yaml:"flush_interval" mapstructure:"flush_interval" validate:"omitempty"`

	// RetentionDays is how long file-sink logs are kept. Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// LostEventsPath is the sidecar recording events lost at shutdown,
	// surfaced on the next start. Empty disables the sidecar.
	LostEventsPath string `yaml:"lost_events_path" mapstructure:"lost_events_path"`
}

// ConversationConfig configures the conversation store.
type ConversationConfig struct {
	// RatePerMinute and RatePerHour are the per-conversation budgets the
	// rate_limit guardrail enforces. Zero keeps the store defaults.
	RatePerMinute int `yaml:"rate_per_minute" mapstructure:"rate_per_minute" validate:"omitempty,min=1"`
	RatePerHour   int `yaml:"rate_per_hour" mapstructure:"rate_per_hour" validate:"omitempty,min=1"`

	// TokenBudget bounds the history window handed to detectors.
	TokenBudget int `yaml:"token_budget" mapstructure:"token_budget" validate:"omitempty,min=1"`

	// SnapshotDir enables conversation persistence when set.
	SnapshotDir string `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`
}

// AuthConfig configures API-key authentication. When no keys are
// declared the facade is open (intended for localhost deployments).
type AuthConfig struct {
	// APIKeys lists accepted key hashes: "sha256:<hex>" or an argon2id
	// encoded hash ("$argon2id$...").
	APIKeys []string `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive,api_key_hash"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8600"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	if c.Pipeline.Preset == "" && c.Pipeline.Document == "" {
		c.Pipeline.Preset = "basic"
	}

	if c.Provider.APIKeyEnv == "" {
		c.Provider.APIKeyEnv = DefaultProviderKeyEnv
	}
	if c.Provider.TimeoutMs == 0 {
		c.Provider.TimeoutMs = 10000
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
}
