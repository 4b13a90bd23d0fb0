package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := validConfig()
	if cfg.Server.HTTPAddr != "127.0.0.1:8600" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Pipeline.Preset != "basic" {
		t.Errorf("Preset = %q, want basic fallback", cfg.Pipeline.Preset)
	}
	if cfg.Audit.Output != "stdout" || cfg.Audit.ChannelSize != 1000 || cfg.Audit.BatchSize != 100 {
		t.Errorf("Audit defaults = %+v", cfg.Audit)
	}
	if cfg.Provider.APIKeyEnv != DefaultProviderKeyEnv {
		t.Errorf("APIKeyEnv = %q", cfg.Provider.APIKeyEnv)
	}
}

func TestDefaultsPreserveExplicitDocument(t *testing.T) {
	cfg := &Config{}
	cfg.Pipeline.Document = "/etc/stinger/pipeline.yaml"
	cfg.SetDefaults()
	if cfg.Pipeline.Preset != "" {
		t.Errorf("Preset = %q, want empty when a document is configured", cfg.Pipeline.Preset)
	}
}

func TestValidateAuditOutput(t *testing.T) {
	tests := []struct {
		output string
		ok     bool
	}{
		{"stdout", true},
		{"memory", true},
		{"file:///var/log/stinger", true},
		{"sqlite:///var/lib/stinger/audit.db", true},
		{"file://relative/path", false},
		{"sqlite://", false},
		{"postgres://example", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			cfg := validConfig()
			cfg.Audit.Output = tt.output
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate(%q) = %v, want ok", tt.output, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("Validate(%q) passed, want error", tt.output)
			}
		})
	}
}

func TestValidateUnknownPreset(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Preset = "deluxe"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown preset") {
		t.Fatalf("err = %v, want unknown preset", err)
	}
}

func TestValidateAPIKeyHash(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.APIKeys = []string{"sha256:deadbeef"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sha256 hash rejected: %v", err)
	}

	cfg.Auth.APIKeys = []string{"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("argon2id hash rejected: %v", err)
	}

	cfg.Auth.APIKeys = []string{"plaintext-key"}
	if err := cfg.Validate(); err == nil {
		t.Error("plaintext key accepted")
	}
}

func TestSecretsReadFromEnvironment(t *testing.T) {
	t.Setenv("STINGER_TEST_KEY", "  sk-test-123  ")
	s := NewSecrets("STINGER_TEST_KEY")

	key, err := s.ProviderAPIKey()
	if err != nil {
		t.Fatalf("ProviderAPIKey: %v", err)
	}
	if key != "sk-test-123" {
		t.Errorf("key = %q, want trimmed value", key)
	}
	if !s.HasProviderAPIKey() {
		t.Error("HasProviderAPIKey = false")
	}
}

func TestSecretsMissingKeyNamesVariableOnly(t *testing.T) {
	s := NewSecrets("STINGER_UNSET_TEST_KEY")
	_, err := s.ProviderAPIKey()
	if err == nil {
		t.Fatal("expected error for unset variable")
	}
	if !strings.Contains(err.Error(), "STINGER_UNSET_TEST_KEY") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestSecretsDefaultVariable(t *testing.T) {
	s := NewSecrets("")
	_, err := s.ProviderAPIKey()
	if err != nil && !strings.Contains(err.Error(), DefaultProviderKeyEnv) {
		t.Errorf("default accessor should consult %s: %v", DefaultProviderKeyEnv, err)
	}
}
