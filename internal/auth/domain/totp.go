package domain

import "time"

// TOTPDevice is a user's TOTP enrollment. A user has at most one confirmed
// and at most one unconfirmed device at any time.
type TOTPDevice struct {
	ID           string
	UserID       string
	SecretSealed []byte // AES-GCM sealed raw secret
	Confirmed    bool
	LastUsedStep int64 // highest accepted time step, 0 before first use
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
}

// Enrollment is handed to the user to provision an authenticator app.
type Enrollment struct {
	Secret          string // base32, for manual entry
	ProvisioningURI string // otpauth://totp/...
	QRCodePNG       []byte
}

// MFAChallenge tracks a pending 2FA ticket by the jti of its pending token.
type MFAChallenge struct {
	JTI       string
	UserID    string
	Attempts  int
	Consumed  bool
	ExpiresAt time.Time
}

// RecoveryCode is a single-use fallback for a lost authenticator.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	CreatedAt time.Time
}
