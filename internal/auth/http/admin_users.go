package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// AdminUsersHandler serves account administration. Reads require
// users:read, changes require users:write.
type AdminUsersHandler struct {
	Credentials *service.CredentialService
}

// HandleListUsers handles GET /v1/admin/users.
//
//	@Summary		List users
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ListUsersResponse
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing users:read"
//	@Router			/v1/admin/users [get]
func (h *AdminUsersHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Credentials.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := authsdk.ListUsersResponse{Users: make([]authsdk.User, 0, len(users))}
	for _, u := range users {
		resp.Users = append(resp.Users, userResponse(u))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetUser handles GET /v1/admin/users/{id}.
//
//	@Summary		Get a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	authsdk.User
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing users:read"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User not found"
//	@Router			/v1/admin/users/{id} [get]
func (h *AdminUsersHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Credentials.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}

// HandleSetRoles handles PUT /v1/admin/users/{id}/roles.
//
//	@Summary		Replace a user's roles
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string					true	"User ID"
//	@Param			request	body	authsdk.SetRolesRequest	true	"Role names"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"Unknown role"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing users:write"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User not found"
//	@Router			/v1/admin/users/{id}/roles [put]
func (h *AdminUsersHandler) HandleSetRoles(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SetRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	if _, err := h.Credentials.SetRoles(r.Context(), r.PathValue("id"), req.Roles); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeNoContent(w)
}

// HandleDeactivate handles POST /v1/admin/users/{id}/deactivate.
//
//	@Summary		Deactivate a user
//	@Description	Blocks login and revokes all refresh tokens of the user.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing users:write"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User not found"
//	@Router			/v1/admin/users/{id}/deactivate [post]
func (h *AdminUsersHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Credentials.Deactivate(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeNoContent(w)
}

// HandleActivate handles POST /v1/admin/users/{id}/activate.
//
//	@Summary		Reactivate a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User ID"
//	@Success		204
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing users:write"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User not found"
//	@Router			/v1/admin/users/{id}/activate [post]
func (h *AdminUsersHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Credentials.Activate(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeNoContent(w)
}
