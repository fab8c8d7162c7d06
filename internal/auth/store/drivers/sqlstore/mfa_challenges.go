package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type mfaChallengesRepo struct {
	c conn
}

func (r *mfaChallengesRepo) EnsureChallenge(ctx context.Context, ch domain.MFAChallenge) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO mfa_challenges (jti, user_id, attempts, consumed, expires_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (jti) DO NOTHING`,
		ch.JTI, ch.UserID, ch.Attempts, ch.Consumed, unix(ch.ExpiresAt),
	)
	return err
}

func (r *mfaChallengesRepo) GetChallenge(ctx context.Context, jti string) (domain.MFAChallenge, error) {
	var (
		ch      domain.MFAChallenge
		expires int64
	)
	err := r.c.queryRow(ctx,
		`SELECT jti, user_id, attempts, consumed, expires_at FROM mfa_challenges WHERE jti = ?`,
		jti,
	).Scan(&ch.JTI, &ch.UserID, &ch.Attempts, &ch.Consumed, &expires)
	if err != nil {
		return domain.MFAChallenge{}, mapNotFound(err)
	}
	ch.ExpiresAt = fromUnix(expires)
	return ch, nil
}

func (r *mfaChallengesRepo) IncrementAttempts(ctx context.Context, jti string, limit int) (int, error) {
	var n int
	err := r.c.queryRow(ctx,
		`UPDATE mfa_challenges SET attempts = attempts + 1
		 WHERE jti = ? AND attempts < ? RETURNING attempts`,
		jti, limit,
	).Scan(&n)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return n, nil
}

func (r *mfaChallengesRepo) ConsumeChallenge(ctx context.Context, jti string) (bool, error) {
	res, err := r.c.exec(ctx,
		`UPDATE mfa_challenges SET consumed = ? WHERE jti = ? AND consumed = ?`,
		true, jti, false,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *mfaChallengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.c.exec(ctx, `DELETE FROM mfa_challenges WHERE expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
