package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidValue     = "INVALID_VALUE"
	ErrCodeMissingConfig    = "MISSING_CONFIG"
	ErrCodeArtifactUnusable = "ARTIFACT_UNUSABLE"
)

// ErrInvalidValue returns an error for a setting that parsed but cannot be used.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	msg := fmt.Sprintf("Invalid %s", varName)
	if value != "" {
		msg = fmt.Sprintf("Invalid %s '%s'", varName, value)
	}
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("%s: %s", msg, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file or environment", varName),
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrArtifactUnusable returns an error for a model artifact that exists on
// disk but could not be loaded.
func ErrArtifactUnusable(path string, cause error) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeArtifactUnusable,
		Message: fmt.Sprintf("Model artifact %s could not be loaded: %v", path, cause),
		Action:  "Re-export the artifact or remove it to disable the feature",
	}
}

// IsConfigError checks if an error is a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}
