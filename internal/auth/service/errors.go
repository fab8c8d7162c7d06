package service

import (
	"errors"
	"fmt"
)

// Service sentinels. Handlers map them to HTTP status and error kind in one
// place; anything else is a 500.
var (
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrInvalidCode            = errors.New("invalid_code")
	ErrDeviceNotConfigured    = errors.New("device_not_configured")
	ErrDeviceAlreadyConfirmed = errors.New("device_already_confirmed")
	ErrTokenExpired           = errors.New("token_expired")
	ErrTokenMalformed         = errors.New("token_malformed")
	ErrTokenInvalid           = errors.New("invalid_token")
	ErrTokenRevoked           = errors.New("token_revoked")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrValidation             = errors.New("validation_error")
	ErrEmailTaken             = errors.New("email_taken")
	ErrTooManyAttempts        = errors.New("too_many_attempts")
	ErrUserNotFound           = errors.New("user_not_found")
)

// validationError wraps ErrValidation with a description safe to show users.
func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
