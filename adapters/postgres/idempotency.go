package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

var _ adapters.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore persists processed-command records in PostgreSQL so a
// retried command can be answered from its stored outcome.
type IdempotencyStore struct {
	conn   *sql.DB
	schema string
	table  string
}

// IdempotencyStoreOption configures an IdempotencyStore.
type IdempotencyStoreOption func(*IdempotencyStore)

// WithIdempotencySchema places the records table in the given schema.
func WithIdempotencySchema(schema string) IdempotencyStoreOption {
	return func(ps *IdempotencyStore) { ps.schema = schema }
}

// WithIdempotencyTable overrides the records table name.
func WithIdempotencyTable(table string) IdempotencyStoreOption {
	return func(ps *IdempotencyStore) { ps.table = table }
}

// NewIdempotencyStore wraps conn in a store writing to
// public.processed_commands unless options say otherwise.
func NewIdempotencyStore(conn *sql.DB, opts ...IdempotencyStoreOption) *IdempotencyStore {
	ps := &IdempotencyStore{conn: conn, schema: "public", table: "processed_commands"}
	for _, o := range opts {
		o(ps)
	}
	return ps
}

// NewIdempotencyStoreFromAdapter shares the connection and schema of an
// existing PostgresAdapter. Options may still override both.
func NewIdempotencyStoreFromAdapter(adapter *PostgresAdapter, opts ...IdempotencyStoreOption) *IdempotencyStore {
	combined := append([]IdempotencyStoreOption{WithIdempotencySchema(adapter.schema)}, opts...)
	return NewIdempotencyStore(adapter.pool, combined...)
}

func (ps *IdempotencyStore) fullTableName() string {
	return quoteQualifiedTable(ps.schema, ps.table)
}

// idemErr tags an error with the operation that produced it.
func idemErr(op string, err error) error {
	return fmt.Errorf("behave/postgres/idempotency: failed to %s: %w", op, err)
}

// nullArg maps zero values to SQL NULL.
func nullArg[T comparable](v T) any {
	var zero T
	if v == zero {
		return nil
	}
	return v
}

// Initialize creates the records table and its housekeeping indexes. Schema
// and table names are validated before they are interpolated into DDL.
func (ps *IdempotencyStore) Initialize(ctx context.Context) error {
	if err := validateIdentifier(ps.schema, "schema"); err != nil {
		return err
	}
	if err := validateIdentifier(ps.table, "table"); err != nil {
		return err
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
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

CREATE INDEX IF NOT EXISTS idx_%[2]s_expires_at ON %[1]s (expires_at);
CREATE INDEX IF NOT EXISTS idx_%[2]s_processed_at ON %[1]s (processed_at);
`, ps.fullTableName(), ps.table)

	if _, err := ps.conn.ExecContext(ctx, ddl); err != nil {
		return idemErr("create table", err)
	}
	return nil
}

// Store upserts record under its key. Zero-valued optional columns land as
// NULL, and a Response that is not valid JSON is dropped rather than sent
// to the JSONB column.
func (ps *IdempotencyStore) Store(ctx context.Context, rec *adapters.IdempotencyRecord) error {
	var response any
	if json.Valid(rec.Response) {
		response = rec.Response
	}

	q := fmt.Sprintf(`
INSERT INTO %s (key, command_type, aggregate_id, version, response, error, success, processed_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (key) DO UPDATE SET
  command_type = EXCLUDED.command_type,
  aggregate_id = EXCLUDED.aggregate_id,
  version = EXCLUDED.version,
  response = EXCLUDED.response,
  error = EXCLUDED.error,
  success = EXCLUDED.success,
  processed_at = EXCLUDED.processed_at,
  expires_at = EXCLUDED.expires_at
`, ps.fullTableName())

	_, err := ps.conn.ExecContext(ctx, q,
		rec.Key,
		rec.CommandType,
		nullArg(rec.AggregateID),
		nullArg(rec.Version),
		response,
		nullArg(rec.Error),
		rec.Success,
		rec.ProcessedAt,
		rec.ExpiresAt,
	)
	if err != nil {
		return idemErr("store record", err)
	}
	return nil
}

// Get loads the record stored under key. Expired and missing keys both come
// back as nil with no error.
func (ps *IdempotencyStore) Get(ctx context.Context, key string) (*adapters.IdempotencyRecord, error) {
	q := fmt.Sprintf(`
SELECT key, command_type, aggregate_id, version, response, error, success, processed_at, expires_at
FROM %s
WHERE key = $1 AND expires_at > NOW()
`, ps.fullTableName())

	var (
		rec   adapters.IdempotencyRecord
		aggID sql.NullString
		ver   sql.NullInt64
		resp  []byte
		msg   sql.NullString
	)
	err := ps.conn.QueryRowContext(ctx, q, key).Scan(
		&rec.Key, &rec.CommandType, &aggID, &ver, &resp, &msg,
		&rec.Success, &rec.ProcessedAt, &rec.ExpiresAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, idemErr("get record", err)
	}

	rec.AggregateID = aggID.String
	rec.Version = ver.Int64
	rec.Error = msg.String
	if resp != nil {
		if !json.Valid(resp) {
			return nil, fmt.Errorf("behave/postgres/idempotency: invalid JSON in response for key %s", key)
		}
		rec.Response = resp
	}

	return &rec, nil
}

// Exists reports whether a live (unexpired) record is stored under key.
func (ps *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	q := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE key = $1 AND expires_at > NOW())`, ps.fullTableName())

	var found bool
	if err := ps.conn.QueryRowContext(ctx, q, key).Scan(&found); err != nil {
		return false, idemErr("check existence", err)
	}
	return found, nil
}

// Delete removes the record stored under key, if any.
func (ps *IdempotencyStore) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, ps.fullTableName())

	if _, err := ps.conn.ExecContext(ctx, q, key); err != nil {
		return idemErr("delete record", err)
	}
	return nil
}

// Cleanup deletes records processed before now minus olderThan, plus any
// record already past its expiry. It returns the number of rows removed.
func (ps *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE processed_at < $1 OR expires_at < NOW()`, ps.fullTableName())

	res, err := ps.conn.ExecContext(ctx, q, time.Now().Add(-olderThan))
	if err != nil {
		return 0, idemErr("cleanup records", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, idemErr("get affected rows", err)
	}
	return n, nil
}

// Count reports how many records the table holds, expired ones included.
func (ps *IdempotencyStore) Count(ctx context.Context) (int64, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ps.fullTableName())

	var n int64
	if err := ps.conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, idemErr("count records", err)
	}
	return n, nil
}

// Clear truncates the table.
func (ps *IdempotencyStore) Clear(ctx context.Context) error {
	q := fmt.Sprintf(`TRUNCATE TABLE %s`, ps.fullTableName())

	if _, err := ps.conn.ExecContext(ctx, q); err != nil {
		return idemErr("clear table", err)
	}
	return nil
}
