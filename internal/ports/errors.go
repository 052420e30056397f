package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Terminal Specific Errors
	ErrTerminalUnavailable  = errors.New("terminal bridge is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the terminal bridge")
	ErrAuthenticationFailed = errors.New("terminal login failed (check account credentials)")
	ErrAccountMismatch      = errors.New("terminal is connected to a different account")
	ErrNoHistory            = errors.New("terminal returned no deal history")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
