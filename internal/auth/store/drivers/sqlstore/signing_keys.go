package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type signingKeysRepo struct {
	c conn
}

const signingKeyColumns = `id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at`

func scanSigningKey(row rowScanner) (domain.SigningKey, error) {
	var (
		k                domain.SigningKey
		created, expires int64
		retired          sql.NullInt64
	)
	if err := row.Scan(&k.ID, &k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &created, &retired, &expires); err != nil {
		return domain.SigningKey{}, err
	}
	k.CreatedAt = fromUnix(created)
	k.RetiredAt = nullUnixPtr(retired)
	k.ExpiresAt = fromUnix(expires)
	return k, nil
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, k domain.SigningKey) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO signing_keys (`+signingKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.Kid, k.Algorithm, k.PrivateKeyEncrypted, unix(k.CreatedAt), optionalUnix(k.RetiredAt), unix(k.ExpiresAt),
	)
	return r.c.mapInsert(err)
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	k, err := scanSigningKey(r.c.queryRow(ctx, `SELECT `+signingKeyColumns+` FROM signing_keys WHERE kid = ?`, kid))
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	return k, nil
}

func (r *signingKeysRepo) list(ctx context.Context, query string, args ...any) ([]domain.SigningKey, error) {
	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, `SELECT `+signingKeyColumns+` FROM signing_keys ORDER BY created_at DESC, id DESC`)
}

func (r *signingKeysRepo) ListVerifiableSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE expires_at > ? ORDER BY created_at DESC, id DESC`,
		unix(now),
	)
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, at, expiresAt time.Time) error {
	return r.c.execAffected(ctx,
		`UPDATE signing_keys SET retired_at = ?, expires_at = ? WHERE kid = ? AND retired_at IS NULL`,
		unix(at), unix(expiresAt), kid,
	)
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.c.exec(ctx, `DELETE FROM signing_keys WHERE expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
