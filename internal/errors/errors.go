package errors

import (
	"errors"
	"fmt"
)

// Common error types for the fleet portal client
var (
	// Credential errors
	ErrNoCredential = errors.New("no credential available")
	ErrAuthRequired = errors.New("authentication required")
	ErrAuthRejected = errors.New("credential rejected by backend")

	// Session errors
	ErrProfileAbsent  = errors.New("no domain profile for identity")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrUnknownPersona = errors.New("unknown persona")
	ErrSessionEnded   = errors.New("session ended while request was in flight")

	// Real-time channel errors
	ErrChannelConnectFailed = errors.New("real-time channel connect failed")
	ErrChannelDropped       = errors.New("real-time channel dropped")
	ErrReconnectAbandoned   = errors.New("real-time reconnect abandoned")
	ErrChannelClosed        = errors.New("real-time channel closed")

	// Backend errors
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrValidation         = errors.New("validation failed")
	ErrServer             = errors.New("server error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single import
func New(text string) error {
	return errors.New(text)
}
