package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

type PasswordHandler struct {
	Credentials *service.CredentialService
}

// ServeHTTP handles POST /v1/password.
//
//	@Summary		Change password
//	@Description	Revokes every refresh token of the user on success.
//	@Tags			Account
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"Validation failed"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Wrong current password"
//	@Router			/v1/password [post]
func (h *PasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	userID, _ := httpx.UserIDFromContext(r.Context())

	err := h.Credentials.ChangePassword(r.Context(), userID,
		req.CurrentPassword, req.NewPassword, req.NewPasswordConfirm)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeNoContent(w)
}
