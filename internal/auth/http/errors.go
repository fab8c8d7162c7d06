package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

type errorMapping struct {
	err    error
	status int
	kind   string
	desc   string
}

// Sentinel to response. Order matters only where one sentinel wraps another.
var serviceErrors = []errorMapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "invalid email or password"},
	{service.ErrInvalidCode, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCode, "invalid verification code"},
	{service.ErrDeviceNotConfigured, http.StatusBadRequest, authsdk.ErrorCodeDeviceNotConfigured, "no two-factor device is configured"},
	{service.ErrDeviceAlreadyConfirmed, http.StatusConflict, authsdk.ErrorCodeDeviceAlreadyConfirmed, "a two-factor device is already confirmed"},
	{service.ErrTokenExpired, http.StatusUnauthorized, authsdk.ErrorCodeTokenExpired, "token has expired"},
	{service.ErrTokenMalformed, http.StatusUnauthorized, authsdk.ErrorCodeTokenMalformed, "token is malformed"},
	{service.ErrTokenInvalid, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "token is invalid"},
	{service.ErrTokenRevoked, http.StatusUnauthorized, authsdk.ErrorCodeTokenRevoked, "token has been revoked"},
	{service.ErrUnauthorized, http.StatusForbidden, authsdk.ErrorCodeUnauthorized, "not allowed"},
	{service.ErrEmailTaken, http.StatusConflict, authsdk.ErrorCodeEmailTaken, "email is already registered"},
	{service.ErrTooManyAttempts, http.StatusTooManyRequests, authsdk.ErrorCodeTooManyAttempts, "too many failed attempts, log in again"},
	{service.ErrUserNotFound, http.StatusNotFound, authsdk.ErrorCodeUserNotFound, "user not found"},
	{service.ErrKeyNotFound, http.StatusNotFound, authsdk.ErrorCodeKeyNotFound, "signing key not found or not active"},
	{service.ErrLastActiveKey, http.StatusConflict, authsdk.ErrorCodeLastActiveKey, "cannot retire the last active signing key"},
	{service.ErrBootstrapAlready, http.StatusConflict, authsdk.ErrorCodeAlreadyBootstrapped, "system has already been bootstrapped"},
	{service.ErrBootstrapUnauthorized, http.StatusForbidden, authsdk.ErrorCodeUnauthorized, "invalid bootstrap token"},
}

// writeServiceError maps a service error to its status and kind. Validation
// errors echo their description; anything unknown is a logged 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrValidation) {
		desc := strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeValidation, desc)
		return
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			httpx.WriteError(w, m.status, m.kind, m.desc)
			return
		}
	}

	slogx.FromContext(r.Context()).Error("request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "an internal error occurred")
}

// writeBadRequest answers an undecodable body.
func writeBadRequest(w http.ResponseWriter, desc string) {
	httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeValidation, desc)
}

func writeNoContent(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
