// Package common provides shared constants, types, and utilities
// used across shuttle-manager.
package common

import "errors"

// Sentinel errors for profile operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Profile errors.
	ErrProfileNotFound = errors.New("unknown profile")
	ErrDuplicateName   = errors.New("profile name already in use")
	ErrInvalidProfile  = errors.New("invalid profile configuration")

	// Session errors.
	ErrAlreadyRunning = errors.New("profile is already running")
	ErrNotRunning     = errors.New("profile is not running")
	ErrStartFailed    = errors.New("profile failed to start")
	ErrStopFailed     = errors.New("failed to stop profile")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")

	// ErrInsecureDir reports a runtime directory other users could write to.
	ErrInsecureDir = errors.New("insecure directory")

	// Store lookup results.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
