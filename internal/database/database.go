package database

import (
	"database/sql/driver"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

// SQLite's built-in lower() only folds ASCII. Replacing it keeps LOWER(name) LIKE ?
// case-insensitive for accented names, matching PostgreSQL.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("lower", 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// Connect opens the database for the given driver ("sqlite" or "pgx").
// SQLite is limited to a single connection so writers are serialized.
func Connect(driver, dsn string, maxOpen int) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite" {
		maxOpen = 1
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	db.SetMaxOpenConns(maxOpen)
	return db, nil
}
