package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

type UserInfoHandler struct {
	Auth *service.AuthService
}

// ServeHTTP handles GET /v1/userinfo.
//
//	@Summary		Get the current user
//	@Description	Roles and permissions reflect the stored account, not the token snapshot.
//	@Tags			Account
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User no longer exists"
//	@Router			/v1/userinfo [get]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "missing subject")
		return
	}

	info, err := h.Auth.UserInfo(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	roles := domain.RoleStrings(info.User.Roles)
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfoResponse{
		Sub:         info.User.ID,
		Email:       info.User.Email,
		Roles:       roles,
		Permissions: domain.PermissionsFor(roles),
		IsStaff:     info.User.IsStaff,
		Has2FA:      info.Has2FA,
	})
}
