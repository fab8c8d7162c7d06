package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	DefaultKeyGracePeriod = 30 * 24 * time.Hour
	DefaultKeyLifetime    = 90 * 24 * time.Hour
)

var (
	ErrKeyNotFound   = errors.New("key_not_found")
	ErrLastActiveKey = errors.New("last_active_key")
)

// KeyRotationService rotates JWT signing keys at runtime.
//
// The KeyManager decides the mode. An ephemeral manager keeps keys in memory
// only, retired keys verify until restart and Store is never consulted. A
// persistent manager needs Store and Sealer: keys are sealed and persisted
// and retired keys stay verifiable for GracePeriod.
type KeyRotationService struct {
	Store      store.Store
	Sealer     jwtx.KeySealer
	KeyManager *jwtx.KeyManager

	GracePeriod time.Duration
	Lifetime    time.Duration

	Now func() time.Time
}

type RotateKeyRequest struct {
	// RetireExisting stops the current keys from signing. Otherwise the new
	// key signs alongside them.
	RetireExisting bool
}

// KeySummary is the public view of a signing key. Private material never
// leaves the service.
type KeySummary struct {
	Kid       string     `json:"kid"`
	Algorithm string     `json:"alg"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at,omitzero"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at,omitzero"`
}

type RotateKeyResponse struct {
	NewKey      KeySummary   `json:"new_key"`
	RetiredKeys []KeySummary `json:"retired_keys,omitempty"`
	ActiveKeys  int          `json:"active_keys"`
}

func (s *KeyRotationService) RotateKey(ctx context.Context, req RotateKeyRequest) (*RotateKeyResponse, error) {
	persistent, err := s.persistent()
	if err != nil {
		return nil, err
	}
	l := slogx.FromContext(ctx)
	now := clock(s.Now)
	alg := s.KeyManager.Algorithm()
	previous := s.KeyManager.GetSigners()

	var (
		signer  jwtx.Signer
		newKey  KeySummary
		retired []KeySummary
	)

	if persistent {
		rec, sg, err := jwtx.GeneratePersistentKey(alg, s.Sealer, idx.NewAt(now).String(), now, s.lifetime())
		if err != nil {
			return nil, err
		}
		signer = sg
		newKey = summarize(store.RecordToSigningKey(rec), now)

		retireUntil := now.Add(s.gracePeriod())
		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.SigningKeys().CreateSigningKey(ctx, store.RecordToSigningKey(rec)); err != nil {
				return fmt.Errorf("store new signing key: %w", err)
			}
			if !req.RetireExisting {
				return nil
			}
			for _, p := range previous {
				key, err := tx.SigningKeys().GetSigningKeyByKid(ctx, p.KID())
				if err != nil {
					return fmt.Errorf("load key %s: %w", p.KID(), err)
				}
				if err := tx.SigningKeys().RetireSigningKey(ctx, key.Kid, now, retireUntil); err != nil {
					return fmt.Errorf("retire key %s: %w", key.Kid, err)
				}
				key.RetiredAt = &now
				key.ExpiresAt = retireUntil
				retired = append(retired, summarize(key, now))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		kid, err := jwtx.NewKeyID()
		if err != nil {
			return nil, err
		}
		_, signer, err = jwtx.GenerateSigner(alg, kid)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		newKey = KeySummary{Kid: kid, Algorithm: alg, Active: true, CreatedAt: now}
		if req.RetireExisting {
			for _, p := range previous {
				retired = append(retired, KeySummary{Kid: p.KID(), Algorithm: p.Alg(), RetiredAt: &now})
			}
		}
	}

	// Add before retiring; the manager refuses to drop its last signer.
	if err := s.KeyManager.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("add signer: %w", err)
	}
	for _, k := range retired {
		if err := s.KeyManager.RetireSignerByKid(k.Kid); err != nil {
			l.Warn("retire signer in key manager failed", slog.String("kid", k.Kid), slog.Any("error", err))
		}
	}

	l.Info("signing key rotated",
		slog.String("kid", newKey.Kid),
		slog.Int("retired", len(retired)),
	)
	return &RotateKeyResponse{
		NewKey:      newKey,
		RetiredKeys: retired,
		ActiveKeys:  s.KeyManager.NumSigners(),
	}, nil
}

// ListSigningKeys returns stored keys in persistent mode. In ephemeral mode
// it reports the key set: active signers plus retired keys still verifying.
func (s *KeyRotationService) ListSigningKeys(ctx context.Context) ([]KeySummary, error) {
	persistent, err := s.persistent()
	if err != nil {
		return nil, err
	}
	now := clock(s.Now)
	if persistent {
		keys, err := s.Store.SigningKeys().ListSigningKeys(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]KeySummary, len(keys))
		for i, k := range keys {
			out[i] = summarize(k, now)
		}
		return out, nil
	}

	active := make([]string, 0)
	for _, sg := range s.KeyManager.GetSigners() {
		active = append(active, sg.KID())
	}
	jwks := s.KeyManager.KeySet.PublicJWKS()
	out := make([]KeySummary, 0, len(jwks.Keys))
	for _, j := range jwks.Keys {
		out = append(out, KeySummary{Kid: j.Kid, Algorithm: j.Alg, Active: slices.Contains(active, j.Kid)})
	}
	return out, nil
}

// RetireKey stops kid from signing without minting a replacement.
func (s *KeyRotationService) RetireKey(ctx context.Context, kid string) error {
	persistent, err := s.persistent()
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(s.KeyManager.GetSigners(), func(sg jwtx.Signer) bool { return sg.KID() == kid }) {
		return ErrKeyNotFound
	}
	if s.KeyManager.NumSigners() <= 1 {
		return ErrLastActiveKey
	}

	if persistent {
		now := clock(s.Now)
		err := s.Store.SigningKeys().RetireSigningKey(ctx, kid, now, now.Add(s.gracePeriod()))
		if errors.Is(err, store.ErrNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("retire key: %w", err)
		}
	}
	if err := s.KeyManager.RetireSignerByKid(kid); err != nil {
		return fmt.Errorf("retire signer: %w", err)
	}
	slogx.FromContext(ctx).Info("signing key retired", slog.String("kid", kid))
	return nil
}

func (s *KeyRotationService) persistent() (bool, error) {
	if s.KeyManager == nil {
		return false, fmt.Errorf("KeyManager is required")
	}
	if !s.KeyManager.Persistent() {
		return false, nil
	}
	if s.Store == nil || s.Sealer == nil {
		return false, fmt.Errorf("persistent key manager needs Store and Sealer")
	}
	return true, nil
}

func (s *KeyRotationService) gracePeriod() time.Duration {
	return ttlOr(s.GracePeriod, DefaultKeyGracePeriod)
}

func (s *KeyRotationService) lifetime() time.Duration {
	return ttlOr(s.Lifetime, DefaultKeyLifetime)
}

func summarize(k domain.SigningKey, now time.Time) KeySummary {
	return KeySummary{
		Kid:       k.Kid,
		Algorithm: k.Algorithm,
		Active:    k.IsActive(now),
		CreatedAt: k.CreatedAt,
		RetiredAt: k.RetiredAt,
		ExpiresAt: k.ExpiresAt,
	}
}
