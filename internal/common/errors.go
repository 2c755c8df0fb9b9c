package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors. ErrValidation is usually wrapped with the offending field.
	ErrValidation        = errors.New("validation error")
	ErrEmailTaken        = errors.New("email already registered")
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// Authentication errors. Unknown email and wrong password share one error.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWrongPassword      = errors.New("current password is incorrect")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired   = errors.New("token expired")
	ErrSessionRevoked = errors.New("session invalid or revoked")

	ErrRateLimited = errors.New("too many requests")
)
