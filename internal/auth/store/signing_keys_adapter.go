package store

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// KeyStoreAdapter lets jwtx load and persist keys without importing domain.
type KeyStoreAdapter struct {
	store Store
}

func NewKeyStoreAdapter(store Store) *KeyStoreAdapter {
	return &KeyStoreAdapter{store: store}
}

func (a *KeyStoreAdapter) ListVerifiableSigningKeys(ctx context.Context, now time.Time) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.store.SigningKeys().ListVerifiableSigningKeys(ctx, now)
	if err != nil {
		return nil, err
	}
	records := make([]jwtx.SigningKeyRecord, len(keys))
	for i, k := range keys {
		records[i] = jwtx.SigningKeyRecord{
			ID:                  k.ID,
			Kid:                 k.Kid,
			Algorithm:           k.Algorithm,
			PrivateKeyEncrypted: k.PrivateKeyEncrypted,
			CreatedAt:           k.CreatedAt,
			RetiredAt:           k.RetiredAt,
			ExpiresAt:           k.ExpiresAt,
		}
	}
	return records, nil
}

func (a *KeyStoreAdapter) CreateSigningKey(ctx context.Context, rec jwtx.SigningKeyRecord) error {
	return a.store.SigningKeys().CreateSigningKey(ctx, RecordToSigningKey(rec))
}

// RecordToSigningKey converts a freshly generated jwtx record for storage.
func RecordToSigningKey(rec jwtx.SigningKeyRecord) domain.SigningKey {
	return domain.SigningKey{
		ID:                  rec.ID,
		Kid:                 rec.Kid,
		Algorithm:           rec.Algorithm,
		PrivateKeyEncrypted: rec.PrivateKeyEncrypted,
		CreatedAt:           rec.CreatedAt,
		RetiredAt:           rec.RetiredAt,
		ExpiresAt:           rec.ExpiresAt,
	}
}
