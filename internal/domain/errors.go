package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when Start() is called on a running unit.
	ErrAlreadyRunning = errors.New("unitdebug: already running")

	// ErrNotRunning is returned for lifecycle transitions out of a stopped unit.
	ErrNotRunning = errors.New("unitdebug: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("unitdebug: shutdown timeout")

	// ErrInvalidConfig is returned when unit or harness configuration is invalid.
	ErrInvalidConfig = errors.New("unitdebug: invalid configuration")

	// ErrModuleNotFound is the cause of a LoadError for unregistered modules.
	ErrModuleNotFound = errors.New("unitdebug: module not registered")
)

// LoadError reports that a unit implementation could not be resolved.
type LoadError struct {
	Module string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load unit module %q: %v", e.Module, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DecodeError reports that a textual payload is not a valid message.
// Cause is a short human-readable category; Err carries the detail.
type DecodeError struct {
	Cause string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Cause, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
