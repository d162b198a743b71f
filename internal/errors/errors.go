// Package apperrors provides domain-specific error types for whaletop.
// These error types include contextual information to aid debugging and
// let callers branch on failure class without string matching.
package apperrors

import (
	"errors"
	"fmt"
)

// AdapterErrorKind classifies failures of the runtime client adapter.
type AdapterErrorKind int

const (
	// AdapterUnreachable means the Docker daemon could not be reached at all.
	// The previous topology snapshot must be retained; nothing was learned.
	AdapterUnreachable AdapterErrorKind = iota
	// AdapterNotFound means a specific target object no longer exists.
	// Treated as removal of that object, not as a daemon failure.
	AdapterNotFound
	// AdapterTimeout means the call exceeded its bounded deadline.
	// Recoverable; retried on the next poll tick.
	AdapterTimeout
)

// String returns the kind name for log output.
func (k AdapterErrorKind) String() string {
	switch k {
	case AdapterUnreachable:
		return "unreachable"
	case AdapterNotFound:
		return "not found"
	case AdapterTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// AdapterError represents a classified failure talking to the container runtime.
// It includes the socket path and the operation that failed.
type AdapterError struct {
	Kind       AdapterErrorKind
	SocketPath string // Docker socket path (e.g., /var/run/docker.sock)
	Operation  string // Operation that failed (e.g., "ListObjects", "StreamLogs")
	Err        error  // Underlying error
}

// Error implements the error interface for AdapterError.
func (e *AdapterError) Error() string {
	if e.SocketPath != "" {
		return fmt.Sprintf("docker %s failed (%s, socket: %s): %v", e.Operation, e.Kind, e.SocketPath, e.Err)
	}
	return fmt.Sprintf("docker %s failed (%s): %v", e.Operation, e.Kind, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is an AdapterError of kind AdapterNotFound.
func IsNotFound(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.Kind == AdapterNotFound
}

// IsUnreachable reports whether err is an AdapterError of kind
// AdapterUnreachable or AdapterTimeout. Both mean the poll learned
// nothing and the previous snapshot stays authoritative.
func IsUnreachable(err error) bool {
	var ae *AdapterError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Kind == AdapterUnreachable || ae.Kind == AdapterTimeout
}

// SessionConflictError is returned when an interactive exec session is
// requested for a container that already has one open. It is returned
// synchronously and never queued.
type SessionConflictError struct {
	ContainerKey string // Topology key of the container
}

// Error implements the error interface for SessionConflictError.
func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("exec session already open for container %s", e.ContainerKey)
}

// TransportError represents a mid-stream failure on an open log or exec
// session. It terminates only that session and is surfaced exactly once.
type TransportError struct {
	ContainerKey string // Topology key of the bound container
	Mode         string // "log" or "exec"
	Err          error  // Underlying error
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s stream for container %s failed: %v", e.Mode, e.ContainerKey, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ConfigurationError represents configuration-related errors.
// It includes the configuration file path and specific key that caused the error.
type ConfigurationError struct {
	ConfigPath string // Path to the configuration file
	Key        string // Configuration key that caused the error
	Err        error  // Underlying error
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configuration error in %s (key: %s): %v", e.ConfigPath, e.Key, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.ConfigPath, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
