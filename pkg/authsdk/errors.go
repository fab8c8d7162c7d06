package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds returned in the "error" field.
const (
	ErrorCodeInvalidCredentials     = "invalid_credentials"
	ErrorCodeInvalidCode            = "invalid_code"
	ErrorCodeDeviceNotConfigured    = "device_not_configured"
	ErrorCodeDeviceAlreadyConfirmed = "device_already_confirmed"
	ErrorCodeTokenExpired           = "token_expired"
	ErrorCodeTokenMalformed         = "token_malformed"
	ErrorCodeInvalidToken           = "invalid_token"
	ErrorCodeTokenRevoked           = "token_revoked"
	ErrorCodeUnauthorized           = "unauthorized"
	ErrorCodeValidation             = "validation_error"
	ErrorCodeEmailTaken             = "email_taken"
	ErrorCodeTooManyAttempts        = "too_many_attempts"
	ErrorCodeRateLimited            = "rate_limited"
	ErrorCodeUserNotFound           = "user_not_found"
	ErrorCodeKeyNotFound            = "key_not_found"
	ErrorCodeLastActiveKey          = "last_active_key"
	ErrorCodeAlreadyBootstrapped    = "already_bootstrapped"
	ErrorCodeNotFound               = "not_found"
	ErrorCodeServerError            = "server_error"
)

// APIError is a decoded error response.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Description)
}

// ErrorCode returns the kind of err when it is an *APIError.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// StatusCode returns the HTTP status of err when it is an *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}
	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}

// TwoFactorRequiredError is returned by AuthenticateWithPassword when the
// login stopped at the pending state.
type TwoFactorRequiredError struct {
	PendingToken       string
	RequiresEnrollment bool
}

func (e *TwoFactorRequiredError) Error() string {
	if e.RequiresEnrollment {
		return "two-factor enrollment required"
	}
	return "two-factor verification required"
}
