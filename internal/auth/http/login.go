package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// LoginHandler serves the anonymous entry points of the state machine.
type LoginHandler struct {
	Auth *service.AuthService
}

// HandleLogin handles POST /v1/login.
//
//	@Summary		Log in with email and password
//	@Description	Returns a token pair, or a pending token when a second factor is required.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limited"
//	@Router			/v1/login [post]
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}

	res, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleRegister handles POST /v1/register.
//
//	@Summary		Register a student account
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"Account"
//	@Success		201		{object}	authsdk.RegisterResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation failed"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already registered"
//	@Router			/v1/register [post]
func (h *LoginHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}

	user, res, err := h.Auth.Register(r.Context(), service.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.RegisterResponse{
		User:          userResponse(user),
		LoginResponse: loginResponse(res),
	})
}

func loginResponse(res service.LoginResult) authsdk.LoginResponse {
	if res.Tokens == nil {
		return authsdk.LoginResponse{
			Requires2FA:        res.Requires2FA,
			RequiresEnrollment: res.RequiresEnrollment,
			PendingToken:       res.PendingToken,
			TokenType:          "Bearer",
			ExpiresIn:          res.PendingExpiresIn,
		}
	}
	return authsdk.LoginResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    res.Tokens.TokenType,
		ExpiresIn:    res.Tokens.ExpiresIn,
	}
}

func tokenResponse(p domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}

func userResponse(u domain.User) authsdk.User {
	return authsdk.User{
		ID:        u.ID,
		Email:     u.Email,
		Roles:     domain.RoleStrings(u.Roles),
		IsActive:  u.IsActive,
		IsStaff:   u.IsStaff,
		CreatedAt: u.CreatedAt,
	}
}
