package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and
// environment variables. If configFile is empty, stinger.yaml/.yml is
// searched in the working directory, ~/.stinger, and /etc/stinger.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// Nothing found: ReadInConfig will return
		// ConfigFileNotFoundError, which LoadConfig tolerates.
		viper.SetConfigName("stinger")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: STINGER_SERVER_HTTP_ADDR etc.
	viper.SetEnvPrefix("STINGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".stinger"),
		"/etc/stinger",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "stinger"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the nested config keys so environment
// variables can override them. Arrays (auth.api_keys) stay file-only.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.log_format")

	_ = viper.BindEnv("pipeline.preset")
	_ = viper.BindEnv("pipeline.document")

	_ = viper.BindEnv("provider.base_url")
	_ = viper.BindEnv("provider.api_key_env")
	_ = viper.BindEnv("provider.timeout_ms")

	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.channel_size")
	_ = viper.BindEnv("audit.batch_size")
	_ = viper.BindEnv("audit.flush_interval")
	_ = viper.BindEnv("audit.retention_days")
	_ = viper.BindEnv("audit.lost_events_path")

	_ = viper.BindEnv("conversation.rate_per_minute")
	_ = viper.BindEnv("conversation.rate_per_hour")
	_ = viper.BindEnv("conversation.token_budget")
	_ = viper.BindEnv("conversation.snapshot_dir")
}

// LoadConfig reads the configuration file, applies environment
// overrides and defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file: environment variables and defaults only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or
// "" when running from environment variables only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
