package sqlstore

import (
	"context"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type recoveryCodesRepo struct {
	c conn
}

func (r *recoveryCodesRepo) CreateRecoveryCodes(ctx context.Context, codes []domain.RecoveryCode) error {
	for _, rc := range codes {
		if _, err := r.c.exec(ctx,
			`INSERT INTO recovery_codes (id, user_id, code_hash, used, created_at) VALUES (?, ?, ?, ?, ?)`,
			rc.ID, rc.UserID, rc.CodeHash, rc.Used, unix(rc.CreatedAt),
		); err != nil {
			return r.c.mapInsert(err)
		}
	}
	return nil
}

func (r *recoveryCodesRepo) ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := r.c.exec(ctx,
		`UPDATE recovery_codes SET used = ? WHERE user_id = ? AND code_hash = ? AND used = ?`,
		true, userID, codeHash, false,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *recoveryCodesRepo) DeleteRecoveryCodes(ctx context.Context, userID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM recovery_codes WHERE user_id = ?`, userID)
	return err
}

func (r *recoveryCodesRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.c.queryRow(ctx,
		`SELECT COUNT(*) FROM recovery_codes WHERE user_id = ? AND used = ?`,
		userID, false,
	).Scan(&n)
	return n, err
}
