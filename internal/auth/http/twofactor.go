package http

import (
	"encoding/base64"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// TwoFactorHandler serves enrollment, challenge and removal of TOTP devices.
type TwoFactorHandler struct {
	Auth *service.AuthService
}

// HandleGenerate handles POST /v1/2fa/generate.
//
//	@Summary		Start TOTP enrollment
//	@Description	Accepts an access token, or a pending token for a user without a confirmed device.
//	@Tags			2FA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.GenerateTwoFactorResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid token"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Pending token and a device is already confirmed"
//	@Router			/v1/2fa/generate [post]
func (h *TwoFactorHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	enr, err := h.Auth.BeginEnrollment(r.Context(), claims)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.GenerateTwoFactorResponse{
		OTPURI:       enr.ProvisioningURI,
		Secret:       enr.Secret,
		QRCodeBase64: base64.StdEncoding.EncodeToString(enr.QRCodePNG),
	})
}

// HandleConfirm handles POST /v1/2fa/confirm.
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Returns recovery codes once. With a pending token it also completes the login.
//	@Tags			2FA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ConfirmTwoFactorRequest	true	"Code from the new device"
//	@Success		200		{object}	authsdk.ConfirmTwoFactorResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"No pending enrollment"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid code or token"
//	@Router			/v1/2fa/confirm [post]
func (h *TwoFactorHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ConfirmTwoFactorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	claims, _ := httpx.ClaimsFromContext(r.Context())

	res, err := h.Auth.ConfirmEnrollment(r.Context(), claims, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.ConfirmTwoFactorResponse{
		Message:       "two-factor authentication enabled",
		RecoveryCodes: res.RecoveryCodes,
	}
	if res.Tokens != nil {
		t := tokenResponse(*res.Tokens)
		out.Tokens = &t
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleVerify handles POST /v1/2fa/verify.
//
//	@Summary		Complete a pending login
//	@Tags			2FA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyTwoFactorRequest	true	"TOTP or recovery code"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid code or token"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Too many attempts"
//	@Router			/v1/2fa/verify [post]
func (h *TwoFactorHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyTwoFactorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	token, _ := httpx.BearerToken(r)

	pair, err := h.Auth.VerifyTwoFactor(r.Context(), token, req.Method, req.Value())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleDisable handles POST /v1/2fa/disable.
//
//	@Summary		Remove the TOTP device
//	@Tags			2FA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.DisableTwoFactorRequest	true	"Current password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"No device configured"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Wrong password"
//	@Router			/v1/2fa/disable [post]
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	var req authsdk.DisableTwoFactorRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}
	userID, _ := httpx.UserIDFromContext(r.Context())

	if err := h.Auth.DisableTwoFactor(r.Context(), userID, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeNoContent(w)
}
