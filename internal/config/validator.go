package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers the engine-specific validation
// rules. Must be called before validating a Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("audit_output", validateAuditOutput); err != nil {
		return fmt.Errorf("failed to register audit_output validator: %w", err)
	}
	if err := v.RegisterValidation("api_key_hash", validateAPIKeyHash); err != nil {
		return fmt.Errorf("failed to register api_key_hash validator: %w", err)
	}
	return nil
}

// validateAuditOutput accepts "stdout", "memory",
// "file://<absolute-dir>", or "sqlite://<absolute-path>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()
	switch {
	case output == "stdout", output == "memory":
		return true
	case strings.HasPrefix(output, "file://"):
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	case strings.HasPrefix(output, "sqlite://"):
		path := strings.TrimPrefix(output, "sqlite://")
		return path != "" && filepath.IsAbs(path)
	}
	return false
}

// validateAPIKeyHash accepts "sha256:<hex>" or an argon2id encoded hash.
func validateAPIKeyHash(fl validator.FieldLevel) bool {
	h := fl.Field().String()
	return strings.HasPrefix(h, "sha256:") || strings.HasPrefix(h, "$argon2id$")
}

// Validate checks the Config with struct tags plus cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if c.Pipeline.Preset != "" && !KnownPreset(c.Pipeline.Preset) {
		return fmt.Errorf("pipeline.preset: unknown preset %q (known: %s)",
			c.Pipeline.Preset, strings.Join(PresetNames(), ", "))
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// actionable messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout', 'memory', 'file://<absolute-dir>', or 'sqlite://<absolute-path>'", field)
	case "api_key_hash":
		return fmt.Sprintf("%s must be 'sha256:<hex>' or an argon2id hash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
