// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package models

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match them with errors.Is; components wrap them with
// context using fmt.Errorf("...: %w", err).
var (
	// ErrAuthenticationRequired is returned by feature methods called before
	// an identity has been established.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrBackendTimeout is returned when a bounded wait elapses.
	ErrBackendTimeout = errors.New("backend timeout")

	// ErrUnrecognizedBackendResponse is returned when a collaborator delivered
	// data that cannot be interpreted.
	ErrUnrecognizedBackendResponse = errors.New("unrecognized backend response")

	// ErrUnknown covers states that should be impossible.
	ErrUnknown = errors.New("unknown error")
)

// ErrorCode returns the API error code for err, or "INTERNAL_ERROR".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return "AUTHENTICATION_REQUIRED"
	case errors.Is(err, ErrBackendTimeout):
		return "BACKEND_TIMEOUT"
	case errors.Is(err, ErrUnrecognizedBackendResponse):
		return "UNRECOGNIZED_BACKEND_RESPONSE"
	case errors.Is(err, ErrUnknown):
		return "UNKNOWN_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Unknownf wraps ErrUnknown with a formatted reason.
func Unknownf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnknown, fmt.Sprintf(format, args...))
}

// Timeoutf wraps ErrBackendTimeout with a formatted reason.
func Timeoutf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBackendTimeout, fmt.Sprintf(format, args...))
}

// Unrecognizedf wraps ErrUnrecognizedBackendResponse with a formatted reason.
func Unrecognizedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnrecognizedBackendResponse, fmt.Sprintf(format, args...))
}
