// Package postgres is the multi-node driver, using pgx through
// database/sql so it shares the sqlstore repositories.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlstore"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

var Dialect = sqlstore.Dialect{
	Name:              "postgres",
	Placeholder:       sqlstore.DollarPlaceholder,
	IsUniqueViolation: isUniqueViolation,
}

// NewStore connects to dsn (a postgres:// URL or key=value string) and
// verifies the connection.
func NewStore(ctx context.Context, dsn string) (*sqlstore.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sqlstore.New(db, Dialect, applyMigrations), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
