package authsdk

import (
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ============================================================================
// Login and registration
// ============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is either a pending ticket (Requires2FA) or a token pair.
type LoginResponse struct {
	Requires2FA        bool   `json:"requires_2fa"`
	RequiresEnrollment bool   `json:"requires_enrollment,omitempty"`
	PendingToken       string `json:"pending_token,omitempty"`

	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Tokens returns the pair carried by a completed login.
func (r LoginResponse) Tokens() TokenResponse {
	return TokenResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
	}
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type RegisterResponse struct {
	User User `json:"user"`
	LoginResponse
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	IsActive  bool      `json:"is_active"`
	IsStaff   bool      `json:"is_staff"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================================
// Tokens
// ============================================================================

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshRequest accepts refresh as an alias of refresh_token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	Refresh      string `json:"refresh,omitempty"`
}

// Token returns whichever field was set.
func (r RefreshRequest) Token() string {
	if r.RefreshToken != "" {
		return r.RefreshToken
	}
	return r.Refresh
}

type RevokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ============================================================================
// Two-factor
// ============================================================================

type GenerateTwoFactorResponse struct {
	OTPURI       string `json:"otp_uri"`
	Secret       string `json:"secret"`
	QRCodeBase64 string `json:"qr_code_base64"`
}

type ConfirmTwoFactorRequest struct {
	Code string `json:"code"`
}

// ConfirmTwoFactorResponse carries the recovery codes, shown once. Tokens is
// set when the confirmation finished a pending login.
type ConfirmTwoFactorResponse struct {
	Message       string         `json:"message"`
	RecoveryCodes []string       `json:"recovery_codes"`
	Tokens        *TokenResponse `json:"tokens,omitempty"`
}

// VerifyTwoFactorRequest accepts otp_token as an alias of code.
type VerifyTwoFactorRequest struct {
	Code     string `json:"code,omitempty"`
	OTPToken string `json:"otp_token,omitempty"`

	// Method is "totp" (default) or "recovery_code".
	Method string `json:"method,omitempty"`
}

func (r VerifyTwoFactorRequest) Value() string {
	if r.Code != "" {
		return r.Code
	}
	return r.OTPToken
}

type DisableTwoFactorRequest struct {
	Password string `json:"password"`
}

// ============================================================================
// Account
// ============================================================================

type UserInfoResponse struct {
	Sub         string   `json:"sub"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	IsStaff     bool     `json:"is_staff"`
	Has2FA      bool     `json:"has_2fa"`
}

type ChangePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

type SetRolesRequest struct {
	Roles []string `json:"roles"`
}

type ListUsersResponse struct {
	Users []User `json:"users"`
}

// ============================================================================
// Signing keys
// ============================================================================

type RotateKeyRequest struct {
	RetireExisting bool `json:"retire_existing"`
}

type KeyInfo struct {
	Kid       string     `json:"kid"`
	Algorithm string     `json:"alg"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at,omitzero"`
}

type RotateKeyResponse struct {
	NewKey      KeyInfo   `json:"new_key"`
	RetiredKeys []KeyInfo `json:"retired_keys,omitempty"`
	ActiveKeys  int       `json:"active_keys"`
}

type ListKeysResponse struct {
	Keys []KeyInfo `json:"keys"`
}

type JWKSResponse jwtx.JWKS

// ============================================================================
// Bootstrap and health
// ============================================================================

type BootstrapRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type BootstrapResponse struct {
	User User `json:"user"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
