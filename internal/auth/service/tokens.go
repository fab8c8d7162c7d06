package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/events"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultPendingTTL = 5 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeBearer = "Bearer"
)

// TokenService mints and validates access tokens and manages the opaque
// refresh tokens backing sessions.
type TokenService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Events     events.Publisher

	Issuer   string
	Audience []string

	AccessTTL  time.Duration
	PendingTTL time.Duration
	RefreshTTL time.Duration

	// RotateRefresh swaps the refresh token on every use and revokes the
	// whole family when a rotated token is presented again.
	RotateRefresh bool

	Now func() time.Time
}

// IssuePendingToken mints the short-lived ticket that only the two-factor
// endpoints accept. It carries no roles.
func (s *TokenService) IssuePendingToken(userID string) (string, jwtx.Claims, error) {
	claims := jwtx.NewClaims(jwtx.ClaimsParams{
		Subject:   userID,
		TokenType: jwtx.TokenTypePending,
		AMR:       []string{jwtx.AMRPassword},
		Issuer:    s.Issuer,
		Audience:  s.Audience,
		TTL:       ttlOr(s.PendingTTL, DefaultPendingTTL),
		Now:       s.now(),
	})
	token, err := s.KeyManager.Sign(claims)
	if err != nil {
		return "", jwtx.Claims{}, fmt.Errorf("sign pending token: %w", err)
	}
	return token, claims, nil
}

// IssueFullTokenPair mints an access token and starts a new refresh family.
func (s *TokenService) IssueFullTokenPair(ctx context.Context, user domain.User, amr []string) (domain.TokenPair, error) {
	now := s.now()
	access, err := s.signAccess(user, amr, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh, err := s.createRefresh(ctx, s.Store, user.ID, uuid.NewString(), now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return s.pair(access, refresh), nil
}

// VerifyAccessToken checks signature, expiry and issuer and returns the
// claims. It does not look at token_type.
func (s *TokenService) VerifyAccessToken(token string) (jwtx.Claims, error) {
	claims, err := s.KeyManager.Verifier.Verify(strings.TrimSpace(token))
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwtx.ErrExpired):
		return jwtx.Claims{}, ErrTokenExpired
	case errors.Is(err, jwtx.ErrMalformed):
		return jwtx.Claims{}, ErrTokenMalformed
	default:
		return jwtx.Claims{}, ErrTokenInvalid
	}
}

// Refresh exchanges a refresh token for a new access token carrying the
// user's current roles. Credentials and second factor are not re-checked.
func (s *TokenService) Refresh(ctx context.Context, raw string) (domain.TokenPair, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.TokenPair{}, ErrTokenInvalid
	}
	hash := cryptox.FingerprintToken(raw)
	now := s.now()
	l := slogx.FromContext(ctx)

	var (
		pair    domain.TokenPair
		outcome error // returned after commit so family revocation sticks
		reused  *domain.RefreshToken
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			outcome = ErrTokenInvalid
			return nil
		}
		if err != nil {
			return err
		}

		if rec.Revoked {
			if s.RotateRefresh {
				if err := tx.RefreshTokens().RevokeFamily(ctx, rec.FamilyID, now); err != nil {
					return err
				}
				reused = &rec
			}
			outcome = ErrTokenRevoked
			return nil
		}
		if rec.IsExpired(now) {
			outcome = ErrTokenExpired
			return nil
		}
		// Claim the token before signing anything. A concurrent refresh that
		// read the same row unrevoked loses here and is treated as reuse.
		if s.RotateRefresh {
			won, err := tx.RefreshTokens().RevokeRefreshToken(ctx, hash, now)
			if err != nil {
				return err
			}
			if !won {
				if err := tx.RefreshTokens().RevokeFamily(ctx, rec.FamilyID, now); err != nil {
					return err
				}
				reused = &rec
				outcome = ErrTokenRevoked
				return nil
			}
		}

		user, err := tx.Users().GetUserByID(ctx, rec.UserID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !user.IsActive) {
			outcome = ErrTokenRevoked
			return nil
		}
		if err != nil {
			return err
		}

		access, err := s.signAccess(user, nil, now)
		if err != nil {
			return err
		}

		next := raw
		if s.RotateRefresh {
			next, err = s.createRefresh(ctx, tx, user.ID, rec.FamilyID, now)
			if err != nil {
				return err
			}
		}
		pair = s.pair(access, next)
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("refresh: %w", err)
	}

	if reused != nil {
		l.Warn("rotated refresh token reused, family revoked",
			slog.String("user_id", reused.UserID),
			slog.String("family_id", reused.FamilyID),
		)
		events.Emit(ctx, s.Events, events.TokenReused, reused.UserID, map[string]string{"family_id": reused.FamilyID})
	}
	if outcome != nil {
		return domain.TokenPair{}, outcome
	}

	events.Emit(ctx, s.Events, events.TokenRefreshed, "", nil)
	return pair, nil
}

// Revoke marks a refresh token revoked. Unknown tokens are not an error.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if _, err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, cryptox.FingerprintToken(raw), s.now()); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	events.Emit(ctx, s.Events, events.TokenRevoked, "", nil)
	return nil
}

func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.Store.RefreshTokens().RevokeAllForUser(ctx, userID, s.now()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	events.Emit(ctx, s.Events, events.TokenRevoked, userID, map[string]string{"scope": "all"})
	return nil
}

func (s *TokenService) signAccess(user domain.User, amr []string, now time.Time) (string, error) {
	claims := jwtx.NewClaims(jwtx.ClaimsParams{
		Subject:   user.ID,
		TokenType: jwtx.TokenTypeAuthenticated,
		Email:     user.Email,
		Roles:     domain.RoleStrings(user.Roles),
		AMR:       amr,
		Issuer:    s.Issuer,
		Audience:  s.Audience,
		TTL:       ttlOr(s.AccessTTL, DefaultAccessTTL),
		Now:       now,
	})
	token, err := s.KeyManager.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

// createRefresh stores a new refresh record through st, which may be a Tx.
func (s *TokenService) createRefresh(ctx context.Context, st store.Store, userID, familyID string, now time.Time) (string, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	rec := domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		FamilyID:  familyID,
		TokenHash: cryptox.FingerprintToken(raw),
		ExpiresAt: now.Add(ttlOr(s.RefreshTTL, DefaultRefreshTTL)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.RefreshTokens().CreateRefreshToken(ctx, rec); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return raw, nil
}

func (s *TokenService) pair(access, refresh string) domain.TokenPair {
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int64(ttlOr(s.AccessTTL, DefaultAccessTTL) / time.Second),
	}
}

// PendingTTLSeconds is the effective pending ticket lifetime.
func (s *TokenService) PendingTTLSeconds() int64 {
	return int64(ttlOr(s.PendingTTL, DefaultPendingTTL) / time.Second)
}

func (s *TokenService) now() time.Time { return clock(s.Now) }

func ttlOr(d, fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return d
}
