// Package postgres provides a PostgreSQL implementation of the saga instance repository.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// Default schema and table names.
const (
	DefaultSchema = "public"
	DefaultTable  = "saga_instance"
)

// identifierPattern matches unquoted PostgreSQL identifiers.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier rejects schema and table names that could break out of quoting.
func validateIdentifier(name, kind string) error {
	if name == "" {
		return fmt.Errorf("tram/postgres: %s name cannot be empty", kind)
	}
	if len(name) > 63 {
		return fmt.Errorf("tram/postgres: %s name exceeds 63 characters", kind)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("tram/postgres: %s name contains invalid characters", kind)
	}
	return nil
}

// quoteIdentifier quotes a single identifier.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualifiedTable returns "schema"."table".
func quoteQualifiedTable(schema, table string) string {
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}

// DBOption configures a connection opened by Open.
type DBOption func(*sql.DB)

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) DBOption {
	return func(db *sql.DB) {
		db.SetMaxOpenConns(n)
	}
}

// WithMaxIdleConnections sets the maximum number of idle connections.
func WithMaxIdleConnections(n int) DBOption {
	return func(db *sql.DB) {
		db.SetMaxIdleConns(n)
	}
}

// WithConnectionMaxLifetime sets the maximum connection lifetime.
func WithConnectionMaxLifetime(d time.Duration) DBOption {
	return func(db *sql.DB) {
		db.SetConnMaxLifetime(d)
	}
}

// Open opens a pgx-backed *sql.DB. The connection is not verified; call Ping.
func Open(connStr string, opts ...DBOption) (*sql.DB, error) {
	db, err := sql.Open(DriverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("tram/postgres: failed to open database: %w", err)
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// tableExists reports whether schema.table is present.
func tableExists(ctx context.Context, db *sql.DB, schema, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("tram/postgres: failed to check table %s.%s: %w", schema, table, err)
	}
	return exists, nil
}
