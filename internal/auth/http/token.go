package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

type TokenHandler struct {
	Auth *service.AuthService
}

// HandleRefresh handles POST /v1/token/refresh.
//
//	@Summary		Exchange a refresh token
//	@Description	Issues a new access token. With rotation enabled the refresh token is replaced and the old one becomes single-use spent.
//	@Tags			Token
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid, expired or revoked refresh token"
//	@Router			/v1/token/refresh [post]
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	rt := req.Token()
	if rt == "" {
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "refresh token is required")
		return
	}

	pair, err := h.Auth.RefreshSession(r.Context(), rt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRevoke handles POST /v1/token/revoke.
//
//	@Summary		Revoke a refresh token
//	@Description	Always succeeds for unknown or already revoked tokens.
//	@Tags			Token
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.RevokeRequest	true	"Refresh token"
//	@Success		200
//	@Router			/v1/token/revoke [post]
func (h *TokenHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RevokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	if err := h.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}
