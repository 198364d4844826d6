package errors

import (
	"errors"
	"fmt"
	"time"
)

// Common error types
var (
	// Controller errors
	ErrConcurrentOperation = errors.New("another operation is in progress")
	ErrCooldownActive      = errors.New("cooldown active")
	ErrNotConnected        = errors.New("not connected")
	ErrAlreadyConnected    = errors.New("already connected")

	// Catalog errors
	ErrServerUnavailable = errors.New("no servers available")
	ErrServerNotFound    = errors.New("server not found")

	// Session errors
	ErrNoActiveSession = errors.New("no active session")
	ErrSessionMismatch = errors.New("local session diverged from server")

	// Network errors
	ErrRequestTimeout = errors.New("request timed out")
	ErrStartFailed    = errors.New("failed to start session")
	ErrEndFailed      = errors.New("failed to end session")
)

// CooldownError reports an attempt made before the minimum inter-attempt
// interval elapsed. It wraps ErrCooldownActive so callers can match with
// errors.Is while still reading the remaining wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: retry in %s", e.Remaining.Round(time.Millisecond))
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// OperationError represents a failure of a named controller operation
type OperationError struct {
	Op  string // connect, disconnect, change-address
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ServerError represents a server-related error
type ServerError struct {
	ServerID int64
	Name     string
	Err      error
}

func (e *ServerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("server '%s' (ID: %d): %v", e.Name, e.ServerID, e.Err)
	}
	return fmt.Sprintf("server (ID: %d): %v", e.ServerID, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
