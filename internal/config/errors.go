package config

import (
	"errors"
	"fmt"
)

// ConfigError represents a bad or missing configuration value. Config
// errors are fatal: the pipeline aborts before any task runs.
type ConfigError struct {
	// Key is the configuration key at fault, empty when the failure is
	// file-level (unreadable, malformed YAML).
	Key     string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config: %s: %s", e.Key, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
