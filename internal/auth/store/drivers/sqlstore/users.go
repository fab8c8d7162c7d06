package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
)

type usersRepo struct {
	c conn
}

const userColumns = `id, email, password_hash, is_active, is_staff, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                domain.User
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsStaff, &created, &updated); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = fromUnix(created)
	u.UpdatedAt = fromUnix(updated)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return r.withRoles(ctx, u)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return r.withRoles(ctx, u)
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.c.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`)
	if err != nil {
		return nil, err
	}
	users := []domain.User{}
	index := map[string]int{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		u.Roles = []domain.Role{}
		index[u.ID] = len(users)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// The first result set must be closed before the next query; sqlite
	// runs on a single connection.
	roles, err := r.c.query(ctx, `SELECT user_id, role FROM user_roles ORDER BY user_id, role`)
	if err != nil {
		return nil, err
	}
	defer roles.Close()
	for roles.Next() {
		var userID, role string
		if err := roles.Scan(&userID, &role); err != nil {
			return nil, err
		}
		if i, ok := index[userID]; ok {
			users[i].Roles = append(users[i].Roles, domain.Role(role))
		}
	}
	return users, roles.Err()
}

func (r *usersRepo) withRoles(ctx context.Context, u domain.User) (domain.User, error) {
	rows, err := r.c.query(ctx, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, u.ID)
	if err != nil {
		return domain.User{}, err
	}
	defer rows.Close()

	u.Roles = []domain.Role{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return domain.User{}, err
		}
		u.Roles = append(u.Roles, domain.Role(role))
	}
	return u, rows.Err()
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.IsActive, u.IsStaff, unix(u.CreatedAt), unix(u.UpdatedAt),
	)
	if err != nil {
		return r.c.mapInsert(err)
	}
	return r.insertRoles(ctx, u.ID, u.Roles)
}

func (r *usersRepo) insertRoles(ctx context.Context, userID string, roles []domain.Role) error {
	for _, role := range roles {
		if _, err := r.c.exec(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			userID, string(role),
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	return r.c.execAffected(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, unix(at), userID,
	)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool, at time.Time) error {
	return r.c.execAffected(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, unix(at), userID,
	)
}

func (r *usersRepo) SetRoles(ctx context.Context, userID string, roles []domain.Role, at time.Time) error {
	if err := r.c.execAffected(ctx, `UPDATE users SET updated_at = ? WHERE id = ?`, unix(at), userID); err != nil {
		return err
	}
	if _, err := r.c.exec(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return r.insertRoles(ctx, userID, roles)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int64
	if err := r.c.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}
