package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Repositories hang off the store rather than taking a *sql.DB
// so that transactional work cannot accidentally nest.
type Store interface {
	Users() Users
	TOTPDevices() TOTPDevices
	RecoveryCodes() RecoveryCodes
	RefreshTokens() RefreshTokens
	MFAChallenges() MFAChallenges
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing if fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already normalized address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts the user and its roles. Returns ErrAlreadyExists
	// when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error
	SetActive(ctx context.Context, userID string, active bool, at time.Time) error

	// ListUsers returns every user with roles, oldest first.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// SetRoles replaces the full role set of a user.
	SetRoles(ctx context.Context, userID string, roles []domain.Role, at time.Time) error

	IsEmpty(ctx context.Context) (bool, error)
}

type TOTPDevices interface {
	CreateDevice(ctx context.Context, d domain.TOTPDevice) error
	GetUnconfirmedDevice(ctx context.Context, userID string) (domain.TOTPDevice, error)
	GetConfirmedDevice(ctx context.Context, userID string) (domain.TOTPDevice, error)
	HasConfirmedDevice(ctx context.Context, userID string) (bool, error)

	// ConfirmDevice flips the device to confirmed and records the step of
	// the code that confirmed it.
	ConfirmDevice(ctx context.Context, id string, step int64, at time.Time) error

	// AdvanceLastUsedStep sets last_used_step only if step is greater than
	// the stored value. It reports whether the row was updated.
	AdvanceLastUsedStep(ctx context.Context, id string, step int64) (bool, error)

	DeleteUnconfirmedDevices(ctx context.Context, userID string) error
	DeleteConfirmedDevices(ctx context.Context, userID string) error
	DeleteDevicesForUser(ctx context.Context, userID string) error

	// DeleteStaleUnconfirmed removes enrollments abandoned before the cutoff.
	DeleteStaleUnconfirmed(ctx context.Context, before time.Time) (int64, error)
}

type RecoveryCodes interface {
	CreateRecoveryCodes(ctx context.Context, codes []domain.RecoveryCode) error

	// ConsumeRecoveryCode marks a matching unused code as used and reports
	// whether one existed.
	ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error)

	DeleteRecoveryCodes(ctx context.Context, userID string) error
	CountUnused(ctx context.Context, userID string) (int, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken reports whether this call flipped the row. Revoking an
	// unknown or already revoked hash returns false and no error.
	RevokeRefreshToken(ctx context.Context, hash string, at time.Time) (bool, error)

	RevokeFamily(ctx context.Context, familyID string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type MFAChallenges interface {
	// EnsureChallenge inserts a challenge row for the jti if none exists.
	EnsureChallenge(ctx context.Context, c domain.MFAChallenge) error
	GetChallenge(ctx context.Context, jti string) (domain.MFAChallenge, error)

	// IncrementAttempts bumps the failure counter and returns the new count.
	// The counter never passes limit; when the challenge is missing or
	// already at the limit it returns ErrNotFound.
	IncrementAttempts(ctx context.Context, jti string, limit int) (int, error)

	// ConsumeChallenge marks the challenge used. It reports false if it was
	// already consumed.
	ConsumeChallenge(ctx context.Context, jti string) (bool, error)

	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)
}

type SigningKeys interface {
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// ListSigningKeys returns every stored key, newest first.
	ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// ListVerifiableSigningKeys returns keys not yet expired, newest first.
	ListVerifiableSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	// RetireSigningKey stops a key from signing and shortens its expiry to
	// the end of the grace period.
	RetireSigningKey(ctx context.Context, kid string, at, expiresAt time.Time) error

	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}
