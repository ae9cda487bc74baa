// Package postgres implements the journal adapter interfaces on PostgreSQL.
// Events are appended inside a transaction that locks the stream row, and a
// unique (stream_id, version) constraint backs the optimistic concurrency
// check.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// defaultSchema is where tables land unless WithSchema overrides it.
const defaultSchema = "behave"

// Version sentinels re-exported so callers don't need the adapters import.
const (
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
	AnyVersion   = adapters.AnyVersion
)

// Sentinels re-exported from the adapters package. Callers can match them
// with errors.Is without importing adapters directly.
var (
	ErrAdapterClosed       = adapters.ErrAdapterClosed
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrInvalidVersion      = adapters.ErrInvalidVersion
)

// Detailed error types and their constructors, shared with the adapters
// package so errors.As works across both.
type (
	ConcurrencyError    = adapters.ConcurrencyError
	StreamNotFoundError = adapters.StreamNotFoundError
)

var (
	NewConcurrencyError    = adapters.NewConcurrencyError
	NewStreamNotFoundError = adapters.NewStreamNotFoundError
)

var _ adapters.JournalAdapter = (*PostgresAdapter)(nil)
var _ adapters.SnapshotAdapter = (*PostgresAdapter)(nil)
var _ adapters.HealthChecker = (*PostgresAdapter)(nil)
var _ adapters.Migrator = (*PostgresAdapter)(nil)
var _ adapters.StreamQueryAdapter = (*PostgresAdapter)(nil)
var _ adapters.MigrationAdapter = (*PostgresAdapter)(nil)
var _ adapters.SchemaProvider = (*PostgresAdapter)(nil)
var _ adapters.DiagnosticAdapter = (*PostgresAdapter)(nil)

// PostgresAdapter stores streams, events, and snapshots in a PostgreSQL
// database. One adapter wraps one connection pool and one schema.
type PostgresAdapter struct {
	pool   *sql.DB
	schema string
	closed bool
}

// Option customizes an adapter during construction.
type Option func(*PostgresAdapter)

// WithSchema overrides the default schema name.
func WithSchema(schema string) Option {
	return func(p *PostgresAdapter) { p.schema = schema }
}

// WithMaxConnections caps the number of open connections in the pool.
func WithMaxConnections(n int) Option {
	return func(p *PostgresAdapter) { p.pool.SetMaxOpenConns(n) }
}

// WithMaxIdleConnections caps the number of idle connections kept around.
func WithMaxIdleConnections(n int) Option {
	return func(p *PostgresAdapter) { p.pool.SetMaxIdleConns(n) }
}

// WithConnectionMaxLifetime bounds how long a pooled connection is reused.
func WithConnectionMaxLifetime(d time.Duration) Option {
	return func(p *PostgresAdapter) { p.pool.SetConnMaxLifetime(d) }
}

// NewAdapter opens a pgx connection pool for connStr and wraps it in an
// adapter. The connection is lazy, so a bad connStr surfaces on first use.
func NewAdapter(connStr string, opts ...Option) (*PostgresAdapter, error) {
	pool, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to open database: %w", err)
	}
	return newAdapter(pool, opts...), nil
}

// NewAdapterWithDB wraps an existing connection pool. The caller keeps
// ownership of the pool's lifecycle until Close is called.
func NewAdapterWithDB(pool *sql.DB, opts ...Option) *PostgresAdapter {
	return newAdapter(pool, opts...)
}

func newAdapter(pool *sql.DB, opts ...Option) *PostgresAdapter {
	p := &PostgresAdapter{pool: pool, schema: defaultSchema}
	for _, o := range opts {
		o(p)
	}
	return p
}

// execer is the subset of *sql.DB and *sql.Tx that exec needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// exec runs a statement and tags any failure with the attempted operation.
func exec(ctx context.Context, db execer, op, query string, args ...any) error {
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("behave/postgres: failed to %s: %w", op, err)
	}
	return nil
}

// Initialize brings the schema up to date. It is a synonym for Migrate kept
// for callers that configure adapters through the generic interfaces.
func (p *PostgresAdapter) Initialize(ctx context.Context) error {
	return p.Migrate(ctx)
}

// Migrate creates the schema, tables, and indexes when they are missing.
// Every statement is idempotent, so running it on a migrated database is a
// no-op.
func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	if err := exec(ctx, p.pool, "create schema", `CREATE SCHEMA IF NOT EXISTS `+p.schema); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.streams (
	id BIGSERIAL PRIMARY KEY,
	stream_id VARCHAR(500) NOT NULL UNIQUE,
	kind VARCHAR(250) NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, p.schema)
	if err := exec(ctx, p.pool, "create streams table", ddl); err != nil {
		return err
	}

	ddl = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.events (
	global_position BIGSERIAL PRIMARY KEY,
	stream_id VARCHAR(500) NOT NULL,
	version BIGINT NOT NULL,
	event_id UUID NOT NULL DEFAULT gen_random_uuid(),
	event_type VARCHAR(500) NOT NULL,
	data JSONB NOT NULL,
	metadata JSONB,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(stream_id, version)
)`, p.schema)
	if err := exec(ctx, p.pool, "create events table", ddl); err != nil {
		return err
	}

	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_streams_kind ON %s.streams(kind)`, p.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_stream ON %s.events(stream_id, version)`, p.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_type ON %s.events(event_type)`, p.schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON %s.events(timestamp)`, p.schema),
	}
	for _, stmt := range stmts {
		if err := exec(ctx, p.pool, "create index", stmt); err != nil {
			return err
		}
	}

	ddl = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.snapshots (
	stream_id VARCHAR(500) PRIMARY KEY,
	version BIGINT NOT NULL,
	data BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, p.schema)
	if err := exec(ctx, p.pool, "create snapshots table", ddl); err != nil {
		return err
	}

	return p.ensureMigrationsTable(ctx)
}

// MigrationVersion reports 1 once the core tables exist and 0 before that.
// The journal schema is created in a single step, so there is nothing finer
// to report yet.
func (p *PostgresAdapter) MigrationVersion(ctx context.Context) (int, error) {
	var found bool
	err := p.pool.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = $1 AND table_name = 'events')`,
		p.schema).Scan(&found)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return 1, nil
}

// Append writes records to the stream after checking the expected version.
// All records commit atomically or not at all.
func (p *PostgresAdapter) Append(ctx context.Context, id string, records []adapters.EventRecord, expected int64) ([]adapters.StoredEvent, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}
	if id == "" {
		return nil, ErrEmptyStreamID
	}
	if len(records) == 0 {
		return nil, ErrNoEvents
	}

	tx, err := p.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Take the stream row lock up front so concurrent appends serialize.
	var current int64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT version FROM %s.streams WHERE stream_id = $1 FOR UPDATE`, p.schema),
		id).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("behave/postgres: failed to get stream version: %w", err)
	}
	streamExists := err == nil

	if err := adapters.CheckVersion(id, expected, current, streamExists); err != nil {
		return nil, err
	}

	if !streamExists {
		insert := fmt.Sprintf(`INSERT INTO %s.streams (stream_id, kind, version) VALUES ($1, $2, 0)`, p.schema)
		if err := exec(ctx, tx, "create stream", insert, id, adapters.ExtractKind(id)); err != nil {
			return nil, err
		}
	}

	insertSQL := fmt.Sprintf(`
INSERT INTO %s.events (stream_id, version, event_type, data, metadata)
VALUES ($1, $2, $3, $4, $5)
RETURNING global_position, event_id, timestamp`, p.schema)

	stored := make([]adapters.StoredEvent, len(records))
	for i, rec := range records {
		current++

		metaJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("behave/postgres: failed to marshal metadata: %w", err)
		}

		ev := adapters.StoredEvent{
			StreamID: id,
			Type:     rec.Type,
			Data:     rec.Data,
			Metadata: rec.Metadata,
			Version:  current,
		}
		err = tx.QueryRowContext(ctx, insertSQL, id, current, rec.Type, rec.Data, metaJSON).
			Scan(&ev.GlobalPosition, &ev.ID, &ev.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("behave/postgres: failed to insert event: %w", err)
		}
		stored[i] = ev
	}

	update := fmt.Sprintf(`UPDATE %s.streams SET version = $1, updated_at = NOW() WHERE stream_id = $2`, p.schema)
	if err := exec(ctx, tx, "update stream version", update, current, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to commit transaction: %w", err)
	}
	return stored, nil
}

// Load returns the events of a stream with versions greater than from, in
// version order. A missing stream loads as an empty slice.
func (p *PostgresAdapter) Load(ctx context.Context, id string, from int64) ([]adapters.StoredEvent, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}
	if id == "" {
		return nil, ErrEmptyStreamID
	}

	rows, err := p.pool.QueryContext(ctx, p.selectEventsSQL(), id, from)
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	return scanStoredEvents(rows)
}

// selectEventsSQL is the shared query behind Load and GetStreamEvents.
func (p *PostgresAdapter) selectEventsSQL() string {
	return fmt.Sprintf(`
SELECT global_position, event_id, stream_id, version, event_type, data, metadata, timestamp
FROM %s.events
WHERE stream_id = $1 AND version > $2
ORDER BY version`, p.schema)
}

// scanStoredEvents reads stored events from rows produced by an event query.
func scanStoredEvents(rows *sql.Rows) ([]adapters.StoredEvent, error) {
	out := make([]adapters.StoredEvent, 0)
	for rows.Next() {
		var ev adapters.StoredEvent
		var metaJSON []byte
		err := rows.Scan(&ev.GlobalPosition, &ev.ID, &ev.StreamID, &ev.Version, &ev.Type, &ev.Data, &metaJSON, &ev.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("behave/postgres: failed to scan event: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("behave/postgres: failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("behave/postgres: error iterating events: %w", err)
	}
	return out, nil
}

// GetStreamInfo describes a stream, including a live count of its events.
func (p *PostgresAdapter) GetStreamInfo(ctx context.Context, id string) (*adapters.StreamInfo, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}

	var si adapters.StreamInfo
	err := p.pool.QueryRowContext(ctx, fmt.Sprintf(`
SELECT s.stream_id, s.kind, s.version,
       (SELECT COUNT(*) FROM %s.events e WHERE e.stream_id = s.stream_id),
       s.created_at, s.updated_at
FROM %s.streams s
WHERE s.stream_id = $1`, p.schema, p.schema), id).
		Scan(&si.StreamID, &si.Kind, &si.Version, &si.EventCount, &si.CreatedAt, &si.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewStreamNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to get stream info: %w", err)
	}
	return &si, nil
}

// GetLastPosition reports the highest global position in the journal, or 0
// when no events have been stored.
func (p *PostgresAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if p.closed {
		return 0, ErrAdapterClosed
	}

	var last sql.NullInt64
	err := p.pool.QueryRowContext(ctx, fmt.Sprintf(`SELECT MAX(global_position) FROM %s.events`, p.schema)).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("behave/postgres: failed to get last position: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

// Close marks the adapter closed and releases the connection pool.
func (p *PostgresAdapter) Close() error {
	p.closed = true
	return p.pool.Close()
}

// SaveSnapshot upserts the snapshot for a stream. Later versions simply
// overwrite earlier ones.
func (p *PostgresAdapter) SaveSnapshot(ctx context.Context, id string, version int64, data []byte) error {
	if p.closed {
		return ErrAdapterClosed
	}

	upsert := fmt.Sprintf(`
INSERT INTO %s.snapshots (stream_id, version, data)
VALUES ($1, $2, $3)
ON CONFLICT (stream_id) DO UPDATE
SET version = EXCLUDED.version, data = EXCLUDED.data, created_at = NOW()`, p.schema)
	return exec(ctx, p.pool, "save snapshot", upsert, id, version, data)
}

// LoadSnapshot returns the stored snapshot, or nil when the stream has none.
func (p *PostgresAdapter) LoadSnapshot(ctx context.Context, id string) (*adapters.SnapshotRecord, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}

	var snap adapters.SnapshotRecord
	err := p.pool.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT stream_id, version, data FROM %s.snapshots WHERE stream_id = $1`, p.schema),
		id).Scan(&snap.StreamID, &snap.Version, &snap.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to load snapshot: %w", err)
	}
	return &snap, nil
}

// DeleteSnapshot drops the snapshot for a stream if one exists.
func (p *PostgresAdapter) DeleteSnapshot(ctx context.Context, id string) error {
	if p.closed {
		return ErrAdapterClosed
	}
	return exec(ctx, p.pool, "delete snapshot",
		fmt.Sprintf(`DELETE FROM %s.snapshots WHERE stream_id = $1`, p.schema), id)
}

// ListStreams returns stream summaries ordered by stream ID, optionally
// filtered by ID prefix. A limit of 0 means no limit.
func (p *PostgresAdapter) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}

	query := fmt.Sprintf(`
SELECT s.stream_id, s.version,
       COALESCE((SELECT e.event_type FROM %s.events e
                 WHERE e.stream_id = s.stream_id
                 ORDER BY e.version DESC LIMIT 1), ''),
       s.updated_at
FROM %s.streams s
WHERE s.stream_id LIKE $1
ORDER BY s.stream_id`, p.schema, p.schema)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := p.pool.QueryContext(ctx, query, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to list streams: %w", err)
	}
	defer rows.Close()

	summaries := make([]adapters.StreamSummary, 0)
	for rows.Next() {
		var sum adapters.StreamSummary
		if err := rows.Scan(&sum.StreamID, &sum.EventCount, &sum.LastEventType, &sum.LastUpdated); err != nil {
			return nil, fmt.Errorf("behave/postgres: failed to scan stream summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("behave/postgres: error iterating streams: %w", err)
	}
	return summaries, nil
}

// GetStreamEvents returns events from a stream with pagination. A limit of 0
// means no limit.
func (p *PostgresAdapter) GetStreamEvents(ctx context.Context, id string, from int64, limit int) ([]adapters.StoredEvent, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}
	if id == "" {
		return nil, ErrEmptyStreamID
	}

	query := p.selectEventsSQL()
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := p.pool.QueryContext(ctx, query, id, from)
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to load events: %w", err)
	}
	defer rows.Close()

	return scanStoredEvents(rows)
}

// GetJournalStats aggregates event and stream counts plus the five most
// frequent event types.
func (p *PostgresAdapter) GetJournalStats(ctx context.Context) (*adapters.JournalStats, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}

	var stats adapters.JournalStats
	err := p.pool.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*), COUNT(DISTINCT stream_id), COUNT(DISTINCT event_type) FROM %s.events`, p.schema)).
		Scan(&stats.TotalEvents, &stats.TotalStreams, &stats.EventTypes)
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to get journal stats: %w", err)
	}
	if stats.TotalStreams > 0 {
		stats.AvgEventsPerStream = float64(stats.TotalEvents) / float64(stats.TotalStreams)
	}

	rows, err := p.pool.QueryContext(ctx, fmt.Sprintf(`
SELECT event_type, COUNT(*)
FROM %s.events
GROUP BY event_type
ORDER BY COUNT(*) DESC, event_type
LIMIT 5`, p.schema))
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to get event type counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc adapters.EventTypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("behave/postgres: failed to scan event type count: %w", err)
		}
		stats.TopEventTypes = append(stats.TopEventTypes, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("behave/postgres: error iterating event types: %w", err)
	}
	return &stats, nil
}

// ensureMigrationsTable creates the migration tracking table if needed. It
// also creates the schema, so migration bookkeeping works before Migrate has
// ever run.
func (p *PostgresAdapter) ensureMigrationsTable(ctx context.Context) error {
	if err := exec(ctx, p.pool, "create schema", `CREATE SCHEMA IF NOT EXISTS `+p.schema); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.schema_migrations (
	name VARCHAR(500) PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, p.schema)
	return exec(ctx, p.pool, "create migrations table", ddl)
}

// GetAppliedMigrations returns the names of applied migrations, oldest first.
func (p *PostgresAdapter) GetAppliedMigrations(ctx context.Context) ([]string, error) {
	infos, err := p.ListMigrations(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(infos))
	for i, m := range infos {
		names[i] = m.Name
	}
	return names, nil
}

// ListMigrations reports applied migrations with their timestamps, oldest
// first.
func (p *PostgresAdapter) ListMigrations(ctx context.Context) ([]adapters.MigrationInfo, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}
	if err := p.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	rows, err := p.pool.QueryContext(ctx,
		fmt.Sprintf(`SELECT name, applied_at FROM %s.schema_migrations ORDER BY applied_at, name`, p.schema))
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to list migrations: %w", err)
	}
	defer rows.Close()

	infos := make([]adapters.MigrationInfo, 0)
	for rows.Next() {
		var mi adapters.MigrationInfo
		if err := rows.Scan(&mi.Name, &mi.AppliedAt); err != nil {
			return nil, fmt.Errorf("behave/postgres: failed to scan migration row: %w", err)
		}
		infos = append(infos, mi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("behave/postgres: error iterating migrations: %w", err)
	}
	return infos, nil
}

// RecordMigration marks a migration as applied. Recording the same name
// twice is a no-op.
func (p *PostgresAdapter) RecordMigration(ctx context.Context, name string) error {
	if p.closed {
		return ErrAdapterClosed
	}
	if err := p.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	return exec(ctx, p.pool, "record migration",
		fmt.Sprintf(`INSERT INTO %s.schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, p.schema), name)
}

// RemoveMigrationRecord removes a migration record (for rollback).
func (p *PostgresAdapter) RemoveMigrationRecord(ctx context.Context, name string) error {
	if p.closed {
		return ErrAdapterClosed
	}
	return exec(ctx, p.pool, "remove migration record",
		fmt.Sprintf(`DELETE FROM %s.schema_migrations WHERE name = $1`, p.schema), name)
}

// ExecuteSQL runs arbitrary SQL, for applying migration files.
func (p *PostgresAdapter) ExecuteSQL(ctx context.Context, sqlText string) error {
	if p.closed {
		return ErrAdapterClosed
	}
	return exec(ctx, p.pool, "execute SQL", sqlText)
}

// GetDiagnosticInfo reports connectivity plus the server version string. A
// failed ping comes back as a disconnected result, not an error.
func (p *PostgresAdapter) GetDiagnosticInfo(ctx context.Context) (*adapters.DiagnosticInfo, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}

	if err := p.pool.PingContext(ctx); err != nil {
		return &adapters.DiagnosticInfo{Connected: false, Message: err.Error()}, nil
	}

	version := "unknown"
	_ = p.pool.QueryRowContext(ctx, `SELECT version()`).Scan(&version)

	return &adapters.DiagnosticInfo{Version: version, Connected: true, Message: "connection healthy"}, nil
}

// CheckSchema verifies the journal schema exists. tableName defaults to
// "events" and must be a plain identifier, which keeps user-supplied names
// out of the SQL text.
func (p *PostgresAdapter) CheckSchema(ctx context.Context, tableName string) (*adapters.SchemaCheckResult, error) {
	if p.closed {
		return nil, ErrAdapterClosed
	}

	if tableName == "" {
		tableName = "events"
	}
	if err := validateIdentifier(tableName, "table"); err != nil {
		return nil, err
	}

	var found bool
	err := p.pool.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		p.schema, tableName).Scan(&found)
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to check schema: %w", err)
	}
	if !found {
		return &adapters.SchemaCheckResult{
			TableExists: false,
			Message:     fmt.Sprintf("table %s.%s does not exist, run migrations first", p.schema, tableName),
		}, nil
	}

	var count int64
	err = p.pool.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteQualifiedTable(p.schema, tableName))).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("behave/postgres: failed to count events: %w", err)
	}

	return &adapters.SchemaCheckResult{
		TableExists: true,
		EventCount:  count,
		Message:     "schema is ready",
	}, nil
}

// GenerateSchema returns the DDL for the journal schema. The statements match
// what Migrate creates, for teams that manage migrations by hand.
func (p *PostgresAdapter) GenerateSchema(projectName, tableName, snapshotTableName, idempotencyTableName string) string {
	if tableName == "" {
		tableName = "events"
	}
	if snapshotTableName == "" {
		snapshotTableName = "snapshots"
	}
	if idempotencyTableName == "" {
		idempotencyTableName = "processed_commands"
	}

	schema := p.schema

	return fmt.Sprintf(`-- Journal schema for %[1]s
-- Generated for PostgreSQL 13+

CREATE SCHEMA IF NOT EXISTS %[2]s;

CREATE TABLE IF NOT EXISTS %[2]s.streams (
	id BIGSERIAL PRIMARY KEY,
	stream_id VARCHAR(500) NOT NULL UNIQUE,
	kind VARCHAR(250) NOT NULL,
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS %[2]s.%[3]s (
	global_position BIGSERIAL PRIMARY KEY,
	stream_id VARCHAR(500) NOT NULL,
	version BIGINT NOT NULL,
	event_id UUID NOT NULL DEFAULT gen_random_uuid(),
	event_type VARCHAR(500) NOT NULL,
	data JSONB NOT NULL,
	metadata JSONB,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(stream_id, version)
);

CREATE INDEX IF NOT EXISTS idx_streams_kind ON %[2]s.streams(kind);
CREATE INDEX IF NOT EXISTS idx_%[3]s_stream ON %[2]s.%[3]s(stream_id, version);
CREATE INDEX IF NOT EXISTS idx_%[3]s_type ON %[2]s.%[3]s(event_type);
CREATE INDEX IF NOT EXISTS idx_%[3]s_timestamp ON %[2]s.%[3]s(timestamp);

CREATE TABLE IF NOT EXISTS %[2]s.%[4]s (
	stream_id VARCHAR(500) PRIMARY KEY,
	version BIGINT NOT NULL,
	data BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS %[2]s.%[5]s (
	key VARCHAR(255) PRIMARY KEY,
	command_type VARCHAR(255) NOT NULL,
	aggregate_id VARCHAR(255),
	version BIGINT,
	response JSONB,
	error TEXT,
	success BOOLEAN NOT NULL DEFAULT false,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_%[5]s_expires_at ON %[2]s.%[5]s(expires_at);

CREATE TABLE IF NOT EXISTS %[2]s.schema_migrations (
	name VARCHAR(500) PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, projectName, schema, tableName, snapshotTableName, idempotencyTableName)
}

// Ping verifies the database is reachable.
func (p *PostgresAdapter) Ping(ctx context.Context) error {
	if p.closed {
		return ErrAdapterClosed
	}
	return p.pool.PingContext(ctx)
}

// DB exposes the underlying pool for callers that need raw access.
func (p *PostgresAdapter) DB() *sql.DB {
	return p.pool
}

// Schema reports the schema the adapter operates in.
func (p *PostgresAdapter) Schema() string {
	return p.schema
}

// schemaNamePattern matches valid PostgreSQL identifiers.
var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier checks if a name is a valid PostgreSQL identifier.
// This helps prevent SQL injection when using identifiers in queries.
func validateIdentifier(name, kind string) error {
	if name == "" {
		return fmt.Errorf("behave/postgres: %s name cannot be empty", kind)
	}
	if len(name) > 63 {
		return fmt.Errorf("behave/postgres: %s name exceeds 63 characters", kind)
	}
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("behave/postgres: %s name contains invalid characters", kind)
	}
	return nil
}

// quoteIdentifier quotes a PostgreSQL identifier.
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

// quoteQualifiedTable returns a quoted schema-qualified table name.
func quoteQualifiedTable(schema, table string) string {
	return quoteIdentifier(schema) + "." + quoteIdentifier(table)
}
