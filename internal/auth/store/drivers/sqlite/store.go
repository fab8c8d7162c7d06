// Package sqlite is the embedded single-node driver, backed by
// modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlstore"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var Dialect = sqlstore.Dialect{
	Name:              "sqlite",
	Placeholder:       sqlstore.QuestionPlaceholder,
	IsUniqueViolation: isUniqueViolation,
}

// NewStore opens dsn (a path, or ":memory:" for tests). SQLite allows one
// writer, so the pool is pinned to a single connection.
func NewStore(dsn string) (*sqlstore.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return sqlstore.New(db, Dialect, applyMigrations), nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
