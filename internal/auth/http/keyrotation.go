package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// KeyRotationHandler handles signing key operations for both ephemeral and
// persistent key modes. Routes require keys:manage.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

// HandleRotate handles POST /v1/admin/keys/rotate
//
//	@Summary		Rotate signing keys
//	@Description	Generate a new signing key and optionally retire the existing ones. Retired keys keep verifying until their tokens expire.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RotateKeyRequest	false	"Rotation options"
//	@Success		200		{object}	authsdk.RotateKeyResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Unauthorized"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Missing keys:manage"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal Server Error"
//	@Security		BearerAuth
//	@Router			/v1/admin/keys/rotate [post]
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RotateKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "request body must be valid JSON")
		return
	}

	resp, err := h.KeyRotationService.RotateKey(r.Context(), service.RotateKeyRequest{
		RetireExisting: req.RetireExisting,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RotateKeyResponse{
		NewKey:      keyInfo(resp.NewKey),
		RetiredKeys: keyInfos(resp.RetiredKeys),
		ActiveKeys:  resp.ActiveKeys,
	})
}

// HandleListKeys handles GET /v1/admin/keys
//
//	@Summary		List signing keys
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{object}	authsdk.ListKeysResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Unauthorized"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing keys:manage"
//	@Security		BearerAuth
//	@Router			/v1/admin/keys [get]
func (h *KeyRotationHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.KeyRotationService.ListSigningKeys(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListKeysResponse{Keys: keyInfos(keys)})
}

// HandleRetireKey handles POST /v1/admin/keys/{kid}/retire
//
//	@Summary		Retire a signing key
//	@Description	Stops signing with the key. The last active key cannot be retired.
//	@Tags			Keys
//	@Param			kid	path	string	true	"Key ID to retire"
//	@Success		204	"No Content - key retired successfully"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Unauthorized"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing keys:manage"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Key not found"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Last active key"
//	@Security		BearerAuth
//	@Router			/v1/admin/keys/{kid}/retire [post]
func (h *KeyRotationHandler) HandleRetireKey(w http.ResponseWriter, r *http.Request) {
	kid := r.PathValue("kid")
	if kid == "" {
		writeBadRequest(w, "kid is required")
		return
	}

	if err := h.KeyRotationService.RetireKey(r.Context(), kid); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeNoContent(w)
}

func keyInfo(k service.KeySummary) authsdk.KeyInfo {
	return authsdk.KeyInfo{
		Kid:       k.Kid,
		Algorithm: k.Algorithm,
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
		RetiredAt: k.RetiredAt,
		ExpiresAt: k.ExpiresAt,
	}
}

func keyInfos(keys []service.KeySummary) []authsdk.KeyInfo {
	out := make([]authsdk.KeyInfo, len(keys))
	for i, k := range keys {
		out[i] = keyInfo(k)
	}
	return out
}
