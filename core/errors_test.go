package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		contains []string
	}{
		{
			name: "error with action",
			err: &ConfigError{
				Code:    "TEST_CODE",
				Message: "Test message",
				Action:  "Take this action",
			},
			contains: []string{"Test message", "Take this action"},
		},
		{
			name: "error without action",
			err: &ConfigError{
				Code:    "TEST_CODE",
				Message: "Test message only",
				Action:  "",
			},
			contains: []string{"Test message only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(errStr, s) {
					t.Errorf("ConfigError.Error() = %q, expected to contain %q", errStr, s)
				}
			}
		})
	}
}

func TestErrInvalidValue(t *testing.T) {
	err := ErrInvalidValue("PORT", "0", "must be between 1 and 65535")
	if err.Code != ErrCodeInvalidValue {
		t.Errorf("Expected code %s, got %s", ErrCodeInvalidValue, err.Code)
	}
	if !strings.Contains(err.Message, "'0'") {
		t.Errorf("Expected message to quote the value, got %s", err.Message)
	}
	if !strings.Contains(err.Action, "PORT") {
		t.Errorf("Expected action to mention PORT, got %s", err.Action)
	}
}

func TestErrArtifactUnusable(t *testing.T) {
	cause := errors.New("yaml: line 3: did not find expected key")
	err := ErrArtifactUnusable("model.yaml", cause)
	if err.Code != ErrCodeArtifactUnusable {
		t.Errorf("Expected code %s, got %s", ErrCodeArtifactUnusable, err.Code)
	}
	if !strings.Contains(err.Message, "model.yaml") || !strings.Contains(err.Message, "line 3") {
		t.Errorf("Expected message to carry path and cause, got %s", err.Message)
	}
}

func TestErrMissingConfig(t *testing.T) {
	err := ErrMissingConfig("DATABASE_PATH")
	if err.Code != ErrCodeMissingConfig {
		t.Errorf("Expected code %s, got %s", ErrCodeMissingConfig, err.Code)
	}
	if !strings.Contains(err.Action, "DATABASE_PATH") {
		t.Errorf("Expected action to mention the variable, got %s", err.Action)
	}
}

func TestIsConfigError(t *testing.T) {
	cfgErr := ErrMissingConfig("X")

	if got, ok := IsConfigError(cfgErr); !ok || got != cfgErr {
		t.Error("IsConfigError should unwrap a direct ConfigError")
	}

	wrapped := fmt.Errorf("loading: %w", cfgErr)
	if got, ok := IsConfigError(wrapped); !ok || got != cfgErr {
		t.Error("IsConfigError should find a wrapped ConfigError")
	}

	if _, ok := IsConfigError(errors.New("plain")); ok {
		t.Error("IsConfigError should reject plain errors")
	}
}
