package connector

import "fmt"

// The NotInitializedError is used when an operation needs the underlying
// connection but Connect has never been called.
type NotInitializedError struct{}

func (e *NotInitializedError) Error() string {
	return "connection not initialized"
}

func (e *NotInitializedError) Unwrap() error { return nil }

// The ConfigError is used when a connect failed for a transient,
// transport-level reason. The caller may retry.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("failed to connect: %s", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
