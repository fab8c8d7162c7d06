package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// InitAuthKeys creates the KeyManager for the configured algorithm and mode.
//
// Storage modes:
//   - "ephemeral": keys are generated on startup and live only in memory.
//     Every issued token becomes invalid when the service restarts.
//   - "persistent": keys are stored in the database, sealed with the master
//     key. Tokens survive restarts and retired keys honour the grace period.
func InitAuthKeys(
	ctx context.Context,
	cfg Config,
	db store.Store,
	sealer *cryptox.Sealer,
	logger *slog.Logger,
) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.KeyAlgorithm,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		NumKeys:   cfg.NumKeys,
	}

	if cfg.KeyMode == "persistent" {
		km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			KeyManagerOptions: opts,
			Store:             store.NewKeyStoreAdapter(db),
			Sealer:            sealer,
			NewID:             func() string { return idx.New().String() },
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}
		logger.Info("persistent signing keys loaded",
			"algorithm", km.Algorithm(),
			"num_keys", km.NumSigners(),
			"grace_period", cfg.KeyGracePeriod,
		)
		return km, nil
	}

	km, err := jwtx.NewEphemeralKeyManager(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
	}
	logger.Info("generated ephemeral signing keys",
		"algorithm", km.Algorithm(),
		"num_keys", km.NumSigners(),
	)
	logger.Warn("ephemeral keys: tokens issued before a restart will not verify")
	return km, nil
}
