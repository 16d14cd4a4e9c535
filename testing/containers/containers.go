// Package containers provides PostgreSQL helpers for integration tests of
// the tram stores. The database comes from TEST_DATABASE_URL or the
// POSTGRES_* variables; tests are skipped when it cannot be reached.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-tram/testing/testutil"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// reachTimeout bounds the one connection attempt made per test binary.
const reachTimeout = 3 * time.Second

var reach struct {
	once   sync.Once
	url    string
	err    error
	checks int
}

// PostgresURL returns the connection string integration tests use.
func PostgresURL() string {
	return testutil.DefaultConfig().PostgresURL
}

// Reachable reports whether PostgreSQL answers at PostgresURL. The first
// call pings the server; later calls return the cached result, so a missing
// database costs one short timeout per package instead of one per test.
func Reachable() error {
	reach.once.Do(func() {
		reach.checks++
		reach.url = PostgresURL()
		reach.err = ping(reach.url)
	})
	return reach.err
}

func ping(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), reachTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

// RequirePostgres skips t in short mode or when PostgreSQL is unreachable,
// and returns the connection string otherwise.
func RequirePostgres(t testing.TB) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	if err := Reachable(); err != nil {
		t.Skipf("PostgreSQL not reachable at %s (set TEST_DATABASE_URL or POSTGRES_HOST/POSTGRES_PORT/POSTGRES_USER/POSTGRES_PASSWORD/POSTGRES_DB): %v",
			redact(reach.url), err)
	}
	return reach.url
}

// redact hides the password of connStr in skip messages.
func redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.Scheme == "" {
		return "<connection string>"
	}
	return u.Redacted()
}

// IntegrationTest is a PostgreSQL connection plus a throwaway schema, both
// released when the test ends.
type IntegrationTest struct {
	t      testing.TB
	ctx    context.Context
	db     *sql.DB
	schema string
}

// IntegrationOption configures an IntegrationTest.
type IntegrationOption func(*integrationConfig)

type integrationConfig struct {
	schemaPrefix string
	timeout      time.Duration
}

// WithSchemaPrefix sets the prefix of the generated schema name.
func WithSchemaPrefix(prefix string) IntegrationOption {
	return func(c *integrationConfig) {
		c.schemaPrefix = prefix
	}
}

// WithTimeout bounds the context returned by Context.
func WithTimeout(d time.Duration) IntegrationOption {
	return func(c *integrationConfig) {
		c.timeout = d
	}
}

// NewIntegrationTest connects to PostgreSQL and creates a unique schema.
// The test is skipped when the database is unreachable.
func NewIntegrationTest(t testing.TB, opts ...IntegrationOption) *IntegrationTest {
	t.Helper()

	cfg := integrationConfig{schemaPrefix: "tram_test", timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	connStr := RequirePostgres(t)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	t.Cleanup(cancel)

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema := testutil.UniqueSchema(cfg.schemaPrefix)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %q", schema)); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_ = testutil.CleanupSchema(dropCtx, db, schema)
	})

	return &IntegrationTest{t: t, ctx: ctx, db: db, schema: schema}
}

// Context returns the test context.
func (it *IntegrationTest) Context() context.Context { return it.ctx }

// DB returns the database connection.
func (it *IntegrationTest) DB() *sql.DB { return it.db }

// Schema returns the schema created for this test.
func (it *IntegrationTest) Schema() string { return it.schema }

// TableExists reports whether table exists in the test schema.
func (it *IntegrationTest) TableExists(table string) bool {
	it.t.Helper()

	var exists bool
	err := it.db.QueryRowContext(it.ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		it.schema, table).Scan(&exists)
	if err != nil {
		it.t.Fatalf("check table %s: %v", table, err)
	}
	return exists
}
