package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type refreshTokensRepo struct {
	c conn
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, family_id, token_hash, expires_at, revoked, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.FamilyID, t.TokenHash, unix(t.ExpiresAt), t.Revoked, unix(t.CreatedAt), unix(t.UpdatedAt),
	)
	return r.c.mapInsert(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t                         domain.RefreshToken
		expires, created, updated int64
	)
	err := r.c.queryRow(ctx,
		`SELECT id, user_id, family_id, token_hash, expires_at, revoked, created_at, updated_at
		 FROM refresh_tokens WHERE token_hash = ?`,
		hash,
	).Scan(&t.ID, &t.UserID, &t.FamilyID, &t.TokenHash, &expires, &t.Revoked, &created, &updated)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.ExpiresAt = fromUnix(expires)
	t.CreatedAt = fromUnix(created)
	t.UpdatedAt = fromUnix(updated)
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string, at time.Time) (bool, error) {
	res, err := r.c.exec(ctx,
		`UPDATE refresh_tokens SET revoked = ?, updated_at = ? WHERE token_hash = ? AND revoked = ?`,
		true, unix(at), hash, false,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, familyID string, at time.Time) error {
	_, err := r.c.exec(ctx,
		`UPDATE refresh_tokens SET revoked = ?, updated_at = ? WHERE family_id = ? AND revoked = ?`,
		true, unix(at), familyID, false,
	)
	return err
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := r.c.exec(ctx,
		`UPDATE refresh_tokens SET revoked = ?, updated_at = ? WHERE user_id = ? AND revoked = ?`,
		true, unix(at), userID, false,
	)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.c.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
