package config

import (
	"fmt"
	"os"
	"strings"
)

// DefaultProviderKeyEnv is the environment variable consulted for the
// provider API key when the configuration does not name another.
const DefaultProviderKeyEnv = "STINGER_PROVIDER_API_KEY"

// Secrets is the single accessor for credentials. Credentials are read
// from the environment only: they never appear in configuration files,
// command lines, or logs. Error messages name the variable, never the
// value.
type Secrets struct {
	providerKeyEnv string
}

// NewSecrets creates the accessor. providerKeyEnv may be empty, in
// which case DefaultProviderKeyEnv is consulted.
func NewSecrets(providerKeyEnv string) *Secrets {
	if providerKeyEnv == "" {
		providerKeyEnv = DefaultProviderKeyEnv
	}
	return &Secrets{providerKeyEnv: providerKeyEnv}
}

// ProviderAPIKey returns the classifier API key. A missing or blank
// variable is a configuration error: pipelines using model-assisted
// guardrails must not be constructed without credentials.
func (s *Secrets) ProviderAPIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(s.providerKeyEnv))
	if key == "" {
		return "", fmt.Errorf("provider API key not set: export %s", s.providerKeyEnv)
	}
	return key, nil
}

// HasProviderAPIKey reports whether the key is present without
// exposing it.
func (s *Secrets) HasProviderAPIKey() bool {
	return strings.TrimSpace(os.Getenv(s.providerKeyEnv)) != ""
}
