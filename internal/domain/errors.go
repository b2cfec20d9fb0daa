package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Uniqueness violations reported by directory backends.
var (
	ErrEmailTaken = errors.New("email already registered")
	ErrPhoneTaken = errors.New("phone number already registered")
)

// Terminal outcomes of OTP verification.
var (
	ErrMissingInput       = errors.New("identifier and code are required")
	ErrNoCodeFound        = errors.New("no verification code found")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrCodeMismatch       = errors.New("verification code mismatch")
	ErrUserNotFound       = errors.New("user not found and no registration data")
	ErrUserCreationFailed = errors.New("user creation failed")
)
