// Package database opens the SQLite portfolio store and exposes the
// introspection helpers the migration engine needs to cope with legacy
// schema drift.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the database surface repositories and the migration engine depend on.
// *sqlx.DB satisfies it.
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

// Open opens a SQLite database file with foreign key enforcement on.
func Open(path string) (*sqlx.DB, error) {
	return open(path, true)
}

// OpenUnchecked opens a SQLite database file without foreign key
// enforcement. The migration engine writes rows whose references are checked
// afterwards as a batch, so unresolved ids must be insertable.
func OpenUnchecked(path string) (*sqlx.DB, error) {
	return open(path, false)
}

func open(path string, enforceFKs bool) (*sqlx.DB, error) {
	dsn := path
	if enforceFKs {
		dsn += "?_foreign_keys=on"
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// during multi-statement phases.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return db, nil
}

// QuoteIdent quotes an identifier for direct inclusion in SQL text. Legacy
// column names can contain spaces, so every introspected name is quoted.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableExists reports whether a table is present in the database.
func TableExists(ctx context.Context, db DB, table string) (bool, error) {
	var name string
	err := db.GetContext(ctx, &name,
		"SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return true, nil
}

type columnInfo struct {
	CID       int     `db:"cid"`
	Name      string  `db:"name"`
	Type      string  `db:"type"`
	NotNull   int     `db:"notnull"`
	DfltValue *string `db:"dflt_value"`
	PK        int     `db:"pk"`
}

// TableColumns returns the column names of a table in declaration order.
// Reading whatever columns a legacy table happens to have is deliberate; the
// migration engine tolerates schema drift instead of assuming a layout.
func TableColumns(ctx context.Context, db DB, table string) ([]string, error) {
	var info []columnInfo
	query := fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(table))
	if err := db.SelectContext(ctx, &info, query); err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	names := make([]string, 0, len(info))
	for _, col := range info {
		names = append(names, col.Name)
	}
	return names, nil
}

// CountRows returns the row count of a table.
func CountRows(ctx context.Context, db DB, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", QuoteIdent(table))
	if err := db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}
