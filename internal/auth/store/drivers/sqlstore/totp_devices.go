package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type totpDevicesRepo struct {
	c conn
}

const deviceColumns = `id, user_id, secret_sealed, confirmed, last_used_step, created_at, confirmed_at`

func scanDevice(row rowScanner) (domain.TOTPDevice, error) {
	var (
		d         domain.TOTPDevice
		created   int64
		confirmed sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.SecretSealed, &d.Confirmed, &d.LastUsedStep, &created, &confirmed); err != nil {
		return domain.TOTPDevice{}, mapNotFound(err)
	}
	d.CreatedAt = fromUnix(created)
	d.ConfirmedAt = nullUnixPtr(confirmed)
	return d, nil
}

func (r *totpDevicesRepo) CreateDevice(ctx context.Context, d domain.TOTPDevice) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO totp_devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.SecretSealed, d.Confirmed, d.LastUsedStep, unix(d.CreatedAt), optionalUnix(d.ConfirmedAt),
	)
	return r.c.mapInsert(err)
}

func (r *totpDevicesRepo) get(ctx context.Context, userID string, confirmed bool) (domain.TOTPDevice, error) {
	return scanDevice(r.c.queryRow(ctx,
		`SELECT `+deviceColumns+` FROM totp_devices WHERE user_id = ? AND confirmed = ?`,
		userID, confirmed,
	))
}

func (r *totpDevicesRepo) GetUnconfirmedDevice(ctx context.Context, userID string) (domain.TOTPDevice, error) {
	return r.get(ctx, userID, false)
}

func (r *totpDevicesRepo) GetConfirmedDevice(ctx context.Context, userID string) (domain.TOTPDevice, error) {
	return r.get(ctx, userID, true)
}

func (r *totpDevicesRepo) HasConfirmedDevice(ctx context.Context, userID string) (bool, error) {
	var n int64
	err := r.c.queryRow(ctx,
		`SELECT COUNT(*) FROM totp_devices WHERE user_id = ? AND confirmed = ?`,
		userID, true,
	).Scan(&n)
	return n > 0, err
}

func (r *totpDevicesRepo) ConfirmDevice(ctx context.Context, id string, step int64, at time.Time) error {
	return r.c.execAffected(ctx,
		`UPDATE totp_devices SET confirmed = ?, confirmed_at = ?, last_used_step = ? WHERE id = ? AND confirmed = ?`,
		true, unix(at), step, id, false,
	)
}

func (r *totpDevicesRepo) AdvanceLastUsedStep(ctx context.Context, id string, step int64) (bool, error) {
	res, err := r.c.exec(ctx,
		`UPDATE totp_devices SET last_used_step = ? WHERE id = ? AND last_used_step < ?`,
		step, id, step,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *totpDevicesRepo) DeleteUnconfirmedDevices(ctx context.Context, userID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM totp_devices WHERE user_id = ? AND confirmed = ?`, userID, false)
	return err
}

func (r *totpDevicesRepo) DeleteConfirmedDevices(ctx context.Context, userID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM totp_devices WHERE user_id = ? AND confirmed = ?`, userID, true)
	return err
}

func (r *totpDevicesRepo) DeleteDevicesForUser(ctx context.Context, userID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM totp_devices WHERE user_id = ?`, userID)
	return err
}

func (r *totpDevicesRepo) DeleteStaleUnconfirmed(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.c.exec(ctx,
		`DELETE FROM totp_devices WHERE confirmed = ? AND created_at < ?`,
		false, unix(before),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
