package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

type BootstrapHandler struct {
	BootstrapService *service.BootstrapService
}

// ServeHTTP handles the bootstrap endpoint for initial system setup.
//
//	@Summary		Bootstrap the authentication system
//	@Description	Creates the first administrator. Only available when a bootstrap token is configured, and only once.
//	@Tags			Bootstrap
//	@Accept			json
//	@Produce		json
//	@Param			X-Bootstrap-Token	header		string						true	"Bootstrap token"
//	@Param			request				body		authsdk.BootstrapRequest	true	"Administrator account"
//	@Success		201					{object}	authsdk.BootstrapResponse
//	@Failure		400					{object}	authsdk.ErrorResponse	"Validation failed"
//	@Failure		403					{object}	authsdk.ErrorResponse	"Missing or invalid bootstrap token"
//	@Failure		404					{object}	authsdk.ErrorResponse	"Bootstrap not enabled"
//	@Failure		409					{object}	authsdk.ErrorResponse	"Already bootstrapped"
//	@Router			/v1/bootstrap [post]
func (h *BootstrapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.BootstrapService.Token == "" {
		httpx.WriteError(w, http.StatusNotFound, authsdk.ErrorCodeNotFound, "bootstrap endpoint is not enabled")
		return
	}

	token := r.Header.Get("X-Bootstrap-Token")
	if token == "" {
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodeUnauthorized,
			"bootstrap token is required in X-Bootstrap-Token header")
		return
	}

	var req authsdk.BootstrapRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}

	slogx.FromContext(r.Context()).Info("bootstrap requested")
	user, err := h.BootstrapService.Bootstrap(r.Context(), token, domain.BootstrapData{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.BootstrapResponse{User: userResponse(user)})
}
