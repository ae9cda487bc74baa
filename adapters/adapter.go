package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every backend. Implementations return these
// directly or wrap them so errors.Is works across adapters.
var (
	// ErrConcurrencyConflict signals a failed optimistic concurrency check.
	ErrConcurrencyConflict = errors.New("behave: concurrency conflict")

	// ErrStreamNotFound signals an operation against a stream with no events.
	ErrStreamNotFound = errors.New("behave: stream not found")

	// ErrEmptyStreamID signals a call made without a stream ID.
	ErrEmptyStreamID = errors.New("behave: stream ID is required")

	// ErrNoEvents signals an Append with an empty batch.
	ErrNoEvents = errors.New("behave: no events to append")

	// ErrInvalidVersion signals an expected version outside the sentinels
	// and the non-negative range.
	ErrInvalidVersion = errors.New("behave: invalid version")

	// ErrAdapterClosed signals use of an adapter after Close.
	ErrAdapterClosed = errors.New("behave: adapter is closed")
)

// EventRecord is an event as handed to Append: a type name, an opaque
// serialized payload, and optional metadata.
type EventRecord struct {
	Type     string
	Data     []byte
	Metadata Metadata // correlation and audit context, may be zero
}

// StoredEvent is an event as the journal returns it, with the positions and
// timestamp the backend assigned on write.
type StoredEvent struct {
	ID             string    // backend-assigned unique identifier
	StreamID       string    // owning stream
	Type           string    // event type name
	Data           []byte    // serialized payload
	Metadata       Metadata  // context captured at append time
	Version        int64     // 1-based position within the stream
	GlobalPosition uint64    // ordering position across all streams
	Timestamp      time.Time // when the event was stored
}

// Metadata travels with every event and survives serialization. It carries
// the correlation, audit, and tenancy context of the command that produced
// the event.
type Metadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	CausationID   string            `json:"causationId,omitempty"`
	CommandName   string            `json:"commandName,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	TenantID      string            `json:"tenantId,omitempty"`
	Custom        map[string]string `json:"custom,omitempty"`
}

// StreamInfo describes one stream: its kind, current version, and the
// timestamps of its first and last events.
type StreamInfo struct {
	StreamID   string
	Kind       string
	Version    int64
	EventCount int64 // total events appended to the stream
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// JournalAdapter is the storage contract of the event journal. A backend
// must persist events atomically per Append call and keep both per-stream
// versions and the global position monotonic.
type JournalAdapter interface {
	// Initialize prepares backing storage. Called once at startup.
	Initialize(ctx context.Context) error

	// Append stores events on streamID after an optimistic concurrency
	// check. expectedVersion is AnyVersion, NoStream, StreamExists, or the
	// concrete version the stream must currently have. The stored events
	// come back with their assigned versions and global positions.
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load returns the events of a stream with version greater than
	// fromVersion, in order. fromVersion 0 loads the whole stream.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error)

	// GetStreamInfo describes a stream, or fails with ErrStreamNotFound.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// GetLastPosition returns the global position of the newest event,
	// or 0 when the journal is empty.
	GetLastPosition(ctx context.Context) (uint64, error)

	// Close releases the adapter's resources.
	Close() error
}

// SnapshotAdapter persists aggregate snapshots so long streams can be
// rebuilt without replaying from the first event.
type SnapshotAdapter interface {
	// SaveSnapshot stores data as the snapshot of streamID at version,
	// replacing any earlier snapshot.
	SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error

	// LoadSnapshot returns the latest snapshot, or nil, nil when the
	// stream has none.
	LoadSnapshot(ctx context.Context, streamID string) (*SnapshotRecord, error)

	// DeleteSnapshot removes the stream's snapshot.
	DeleteSnapshot(ctx context.Context, streamID string) error
}

// SnapshotRecord is a stored snapshot: the stream it belongs to, the
// version it captures, and the serialized aggregate state.
type SnapshotRecord struct {
	StreamID string // stream the snapshot belongs to
	Version  int64  // last event version folded into the snapshot
	Data     []byte // serialized aggregate state
}

// HealthChecker is implemented by adapters that can probe their backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Migrator is implemented by adapters that manage their schema through
// versioned migrations.
type Migrator interface {
	// Migrate applies all pending migrations.
	Migrate(ctx context.Context) error

	// MigrationVersion reports the version the schema is currently at.
	MigrationVersion(ctx context.Context) (int, error)
}

// IdempotencyStore remembers processed commands so a retry can be answered
// from the recorded outcome instead of being executed twice.
type IdempotencyStore interface {
	// Exists reports whether key has a live record.
	Exists(ctx context.Context, key string) (bool, error)

	// Store saves the outcome of a processed command.
	Store(ctx context.Context, rec *IdempotencyRecord) error

	// Get returns the record under key, or nil, nil when there is none.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Delete removes the record under key.
	Delete(ctx context.Context, key string) error

	// Cleanup drops expired records and returns how many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyRecord captures the outcome of one processed command.
type IdempotencyRecord struct {
	Key         string    `json:"key"`
	CommandType string    `json:"commandType"`
	AggregateID string    `json:"aggregateId,omitempty"`
	Version     int64     `json:"version,omitempty"`
	Response    []byte    `json:"response,omitempty"`
	Error       string    `json:"error,omitempty"`
	Success     bool      `json:"success"`
	ProcessedAt time.Time `json:"processedAt"` // when the outcome was recorded
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IsExpired reports whether the record is past its expiry time.
func (rec *IdempotencyRecord) IsExpired() bool {
	return time.Now().After(rec.ExpiresAt)
}

// StreamSummary is one row of a stream listing.
type StreamSummary struct {
	StreamID      string
	EventCount    int64
	LastEventType string // type of the newest event
	LastUpdated   time.Time
}

// JournalStats aggregates journal-wide counters for inspection tools.
type JournalStats struct {
	TotalEvents        int64
	TotalStreams       int64
	EventTypes         int64
	AvgEventsPerStream float64
	TopEventTypes      []EventTypeCount
}

// EventTypeCount pairs an event type with its occurrence count.
type EventTypeCount struct {
	Type  string
	Count int64
}

// MigrationInfo describes one migration and whether it has been applied.
type MigrationInfo struct {
	Name      string
	AppliedAt time.Time // zero when pending
	Applied   bool
}

// StreamQueryAdapter exposes read-only stream inspection, primarily for
// CLI tooling that must not issue raw SQL.
type StreamQueryAdapter interface {
	// ListStreams returns stream summaries. prefix narrows by stream ID
	// prefix, empty for all; limit 0 means unlimited.
	ListStreams(ctx context.Context, prefix string, limit int) ([]StreamSummary, error)

	// GetStreamEvents pages through a stream starting after fromVersion.
	GetStreamEvents(ctx context.Context, streamID string, fromVersion int64, limit int) ([]StoredEvent, error)

	// GetJournalStats aggregates counters across the whole journal.
	GetJournalStats(ctx context.Context) (*JournalStats, error)
}

// MigrationAdapter lets CLI tooling manage the migration ledger.
type MigrationAdapter interface {
	// GetAppliedMigrations lists the names of applied migrations.
	GetAppliedMigrations(ctx context.Context) ([]string, error)

	// ListMigrations reports applied migrations with their timestamps.
	ListMigrations(ctx context.Context) ([]MigrationInfo, error)

	// RecordMigration marks name as applied.
	RecordMigration(ctx context.Context, name string) error

	// RemoveMigrationRecord unmarks name, for rollback.
	RemoveMigrationRecord(ctx context.Context, name string) error

	// ExecuteSQL runs migration SQL verbatim.
	ExecuteSQL(ctx context.Context, sql string) error
}

// SchemaProvider renders the DDL for a backend's journal schema.
type SchemaProvider interface {
	// GenerateSchema returns DDL using the given project name and the
	// events, snapshots, and processed-commands table names.
	GenerateSchema(projectName, tableName, snapshotTableName, idempotencyTableName string) string
}

// DiagnosticAdapter answers the health questions the doctor command asks.
type DiagnosticAdapter interface {
	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// GetDiagnosticInfo reports server version and connection state.
	GetDiagnosticInfo(ctx context.Context) (*DiagnosticInfo, error)

	// CheckSchema verifies the journal tables exist.
	CheckSchema(ctx context.Context, tableName string) (*SchemaCheckResult, error)
}

// DiagnosticInfo is the result of a connectivity probe.
type DiagnosticInfo struct {
	Version   string // server version, e.g. "PostgreSQL 16.1"
	Connected bool
	Message   string
}

// SchemaCheckResult reports whether the journal schema is in place.
type SchemaCheckResult struct {
	TableExists bool  // journal table found in the schema
	EventCount  int64 // rows in the journal table when it exists
	Message     string
}
