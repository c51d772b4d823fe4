// Package errors provides custom error types and exit codes for envcerts.
package errors

import (
	"errors"
	"fmt"
)

// EnvcertsError carries the operation and path that failed.
type EnvcertsError struct {
	Op   string // Operation being performed (e.g., "backup bundle", "watch root")
	Path string // File or directory involved
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *EnvcertsError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EnvcertsError) Unwrap() error {
	return e.Err
}

// Predefined errors for common scenarios.
var (
	// ErrWatchUnavailable marks a watch subscription that could not be
	// established. It is fatal at startup.
	ErrWatchUnavailable    = fmt.Errorf("watch backend unavailable")
	ErrSourceBundleInvalid = fmt.Errorf("source bundle contains no PEM certificates")
	ErrNotDirectory        = fmt.Errorf("not a directory")
	ErrBackupNotFound      = fmt.Errorf("backup bundle not found")
	ErrInvalidConfig       = fmt.Errorf("invalid configuration")
)

// Exit codes - use these constants in CLI commands instead of hardcoding values.
const (
	ExitSuccess      = 0 // Success
	ExitGeneralError = 1 // General error (file I/O, permissions)
	ExitConfigError  = 2 // Configuration error (invalid config, missing values)
	ExitCertError    = 3 // Certificate error (source bundle unreadable or empty)
	ExitWatchError   = 4 // Watch backend could not be established
)

// IsError checks if the given error matches the target error using errors.Is.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// IsPrecondition reports whether err is a watch precondition failure.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrWatchUnavailable)
}
