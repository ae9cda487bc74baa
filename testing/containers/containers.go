// Package containers provides database endpoints for integration testing.
// Endpoints are discovered from environment variables with local-development
// defaults, so the same tests run against a locally started PostgreSQL or a
// CI service container without code changes. Tests skip when no server is
// reachable.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresContainer describes a reachable PostgreSQL test server.
type PostgresContainer struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	connStr  string
}

// PostgresOption overrides part of the discovered endpoint.
type PostgresOption func(*PostgresContainer)

// WithPostgresHost overrides the database host.
func WithPostgresHost(h string) PostgresOption {
	return func(pc *PostgresContainer) { pc.Host = h }
}

// WithPostgresDatabase overrides the database name.
func WithPostgresDatabase(db string) PostgresOption {
	return func(pc *PostgresContainer) { pc.Database = db }
}

// WithPostgresUser overrides the database user.
func WithPostgresUser(u string) PostgresOption {
	return func(pc *PostgresContainer) { pc.User = u }
}

// WithPostgresPassword overrides the database password.
func WithPostgresPassword(pw string) PostgresOption {
	return func(pc *PostgresContainer) { pc.Password = pw }
}

// WithPostgresPort overrides the host port.
func WithPostgresPort(p string) PostgresOption {
	return func(pc *PostgresContainer) { pc.Port = p }
}

// envOr returns the first set environment variable among keys, or def.
func envOr(def string, keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return def
}

// endpointFromEnv discovers the test endpoint. Each setting honors a
// POSTGRES_* variable first, then its TEST_POSTGRES_* twin, then a default
// matching a stock local PostgreSQL: localhost:5432, database behave_test,
// user and password postgres.
func endpointFromEnv() *PostgresContainer {
	return &PostgresContainer{
		Host:     envOr("localhost", "POSTGRES_HOST", "TEST_POSTGRES_HOST"),
		Port:     envOr("5432", "POSTGRES_PORT", "TEST_POSTGRES_PORT"),
		User:     envOr("postgres", "POSTGRES_USER", "TEST_POSTGRES_USER"),
		Password: envOr("postgres", "POSTGRES_PASSWORD", "TEST_POSTGRES_PASSWORD"),
		Database: envOr("behave_test", "POSTGRES_DB", "TEST_POSTGRES_DB"),
	}
}

// readyTimeout bounds how long StartPostgres probes before skipping.
const readyTimeout = 30 * time.Second

// StartPostgres resolves the PostgreSQL test endpoint and waits for it to
// accept connections. The test is skipped when no server answers within the
// wait window, so journal integration tests are a no-op on machines without
// a database.
func StartPostgres(t *testing.T, opts ...PostgresOption) *PostgresContainer {
	t.Helper()

	ep := endpointFromEnv()
	for _, opt := range opts {
		opt(ep)
	}
	ep.connStr = ep.ConnectionString()

	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := awaitServer(ctx, ep.connStr); err != nil {
		t.Skipf("PostgreSQL not available (start one locally or set TEST_POSTGRES_* variables): %v", err)
	}
	return ep
}

// ConnectionString builds the postgres:// URL for the endpoint.
func (pc *PostgresContainer) ConnectionString() string {
	if pc.connStr != "" {
		return pc.connStr
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// DB opens a connection and verifies it with a ping.
func (pc *PostgresContainer) DB(ctx context.Context) (*sql.DB, error) {
	conn, err := sql.Open("pgx", pc.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("containers: failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("containers: failed to reach database: %w", err)
	}
	return conn, nil
}

// MustDB returns a connection or panics when the server is unreachable.
func (pc *PostgresContainer) MustDB(ctx context.Context) *sql.DB {
	conn, err := pc.DB(ctx)
	if err != nil {
		panic(err)
	}
	return conn
}

// CreateSchema creates a schema named prefix_<nanos>, unique per call so
// concurrent tests never collide.
func (pc *PostgresContainer) CreateSchema(ctx context.Context, conn *sql.DB, prefix string) (string, error) {
	name := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	if _, err := conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(name)); err != nil {
		return "", fmt.Errorf("containers: failed to create schema %s: %w", name, err)
	}
	return name, nil
}

// DropSchema drops a test schema and everything in it.
func (pc *PostgresContainer) DropSchema(ctx context.Context, conn *sql.DB, schema string) error {
	_, err := conn.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+quoteIdent(schema)+" CASCADE")
	return err
}

// awaitServer probes the server until a ping succeeds or ctx expires.
func awaitServer(ctx context.Context, connStr string) error {
	for {
		conn, err := sql.Open("pgx", connStr)
		if err == nil {
			err = conn.PingContext(ctx)
			conn.Close()
			if err == nil {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// quoteIdent quotes a PostgreSQL identifier, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// IntegrationTest provides a connected database with a throwaway schema that
// is dropped when the test finishes. Concurrent tests each get their own
// schema, so they never see each other's streams.
type IntegrationTest struct {
	t      *testing.T
	ctx    context.Context
	ep     *PostgresContainer
	conn   *sql.DB
	schema string
}

// IntegrationTestOption adjusts the integration test environment.
type IntegrationTestOption func(*integrationTestConfig)

type integrationTestConfig struct {
	prefix  string
	timeout time.Duration
}

// WithSchemaPrefix names the throwaway schema after prefix.
func WithSchemaPrefix(prefix string) IntegrationTestOption {
	return func(c *integrationTestConfig) { c.prefix = prefix }
}

// WithTimeout bounds the whole test run.
func WithTimeout(d time.Duration) IntegrationTestOption {
	return func(c *integrationTestConfig) { c.timeout = d }
}

// NewIntegrationTest connects to the test server, carves out a fresh schema,
// and registers cleanup that drops it again.
func NewIntegrationTest(t *testing.T, opts ...IntegrationTestOption) *IntegrationTest {
	t.Helper()

	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}

	conf := &integrationTestConfig{prefix: "test", timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(conf)
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.timeout)
	t.Cleanup(cancel)

	ep := StartPostgres(t)
	conn, err := ep.DB(ctx)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}

	schema, err := ep.CreateSchema(ctx, conn, conf.prefix)
	if err != nil {
		conn.Close()
		t.Fatalf("creating test schema: %v", err)
	}
	t.Cleanup(func() {
		if err := ep.DropSchema(context.Background(), conn, schema); err != nil {
			t.Logf("dropping schema %s: %v", schema, err)
		}
		conn.Close()
	})

	return &IntegrationTest{t: t, ctx: ctx, ep: ep, conn: conn, schema: schema}
}

// Context returns the deadline-bound test context.
func (env *IntegrationTest) Context() context.Context {
	return env.ctx
}

// DB returns the shared database connection.
func (env *IntegrationTest) DB() *sql.DB {
	return env.conn
}

// Schema returns the name of the throwaway schema.
func (env *IntegrationTest) Schema() string {
	return env.schema
}

// Container returns the PostgreSQL endpoint.
func (env *IntegrationTest) Container() *PostgresContainer {
	return env.ep
}

// ConnectionString returns the connection string with the test schema on the
// search path.
func (env *IntegrationTest) ConnectionString() string {
	return env.ep.ConnectionString() + "&search_path=" + env.schema
}

// Exec runs a SQL statement, failing the test on error.
func (env *IntegrationTest) Exec(query string, args ...any) {
	env.t.Helper()
	if _, err := env.conn.ExecContext(env.ctx, query, args...); err != nil {
		env.t.Fatalf("exec %q: %v", query, err)
	}
}

// Query runs a SQL query, failing the test on error.
func (env *IntegrationTest) Query(query string, args ...any) *sql.Rows {
	env.t.Helper()
	rows, err := env.conn.QueryContext(env.ctx, query, args...)
	if err != nil {
		env.t.Fatalf("query %q: %v", query, err)
	}
	return rows
}

// JournalTest is an integration test environment with the journal tables
// migrated into its throwaway schema.
type JournalTest struct {
	*IntegrationTest
	adapter *postgres.PostgresAdapter
}

// NewJournalTest creates an integration test environment and migrates the
// journal schema into it. The returned adapter shares the environment's
// connection, which the test cleanup closes; do not Close the adapter.
func NewJournalTest(t *testing.T) *JournalTest {
	t.Helper()

	env := NewIntegrationTest(t, WithSchemaPrefix("journal"))

	adapter := postgres.NewAdapterWithDB(env.DB(), postgres.WithSchema(env.Schema()))
	if err := adapter.Migrate(env.Context()); err != nil {
		t.Fatalf("migrating journal schema: %v", err)
	}

	return &JournalTest{IntegrationTest: env, adapter: adapter}
}

// Adapter returns the journal adapter bound to the test schema.
func (jt *JournalTest) Adapter() *postgres.PostgresAdapter {
	return jt.adapter
}
