// Package sqlstore implements store.Store on database/sql. The sqlite and
// postgres drivers wrap it with their connection setup, migrations and a
// Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// IsUniqueViolation reports whether err came from a unique or primary
	// key constraint.
	IsUniqueViolation func(err error) bool
}

// Migrator applies the driver's embedded migrations.
type Migrator func(db *sql.DB) error

// QuestionPlaceholder is the sqlite style.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder is the postgres style.
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// rebind rewrites ? placeholders for the dialect. Queries in this package
// never contain a literal question mark.
func (d Dialect) rebind(query string) string {
	if d.Placeholder == nil {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn is what every repo holds: a *sql.DB or *sql.Tx plus the dialect.
type conn struct {
	q querier
	d Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// execAffected runs an update and returns ErrNotFound when nothing matched.
func (c conn) execAffected(ctx context.Context, query string, args ...any) error {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c conn) mapInsert(err error) error {
	if err != nil && c.d.IsUniqueViolation != nil && c.d.IsUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// DB is a store.Store backed by a *sql.DB.
type DB struct {
	db      *sql.DB
	dialect Dialect
	migrate Migrator
}

func New(db *sql.DB, dialect Dialect, migrate Migrator) *DB {
	return &DB{db: db, dialect: dialect, migrate: migrate}
}

// SQL exposes the underlying handle for driver specific work.
func (s *DB) SQL() *sql.DB { return s.db }

func (s *DB) Dialect() Dialect { return s.dialect }

func (s *DB) ApplyMigrations() error {
	if s.migrate == nil {
		return nil
	}
	return s.migrate(s.db)
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx, c: conn{q: tx, d: s.dialect}}, nil
}

func (s *DB) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DB) conn() conn { return conn{q: s.db, d: s.dialect} }

func (s *DB) Users() store.Users                 { return &usersRepo{c: s.conn()} }
func (s *DB) TOTPDevices() store.TOTPDevices     { return &totpDevicesRepo{c: s.conn()} }
func (s *DB) RecoveryCodes() store.RecoveryCodes { return &recoveryCodesRepo{c: s.conn()} }
func (s *DB) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{c: s.conn()} }
func (s *DB) MFAChallenges() store.MFAChallenges { return &mfaChallengesRepo{c: s.conn()} }
func (s *DB) SigningKeys() store.SigningKeys     { return &signingKeysRepo{c: s.conn()} }

type txStore struct {
	tx *sql.Tx
	c  conn
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }
func (t *txStore) ApplyMigrations() error         { return nil } // migrations run before serving

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }
func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                 { return &usersRepo{c: t.c} }
func (t *txStore) TOTPDevices() store.TOTPDevices     { return &totpDevicesRepo{c: t.c} }
func (t *txStore) RecoveryCodes() store.RecoveryCodes { return &recoveryCodesRepo{c: t.c} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{c: t.c} }
func (t *txStore) MFAChallenges() store.MFAChallenges { return &mfaChallengesRepo{c: t.c} }
func (t *txStore) SigningKeys() store.SigningKeys     { return &signingKeysRepo{c: t.c} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// Timestamps are stored as unix seconds.
func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(s int64) time.Time { return time.Unix(s, 0).UTC() }

func optionalUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullUnixPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}
