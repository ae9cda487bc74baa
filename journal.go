package behave

import (
	"context"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

// Journal is the persistence entry point for behavior streams. It wraps a
// storage adapter with serialization and exposes append and load operations
// over whole streams. The behavior engine itself never touches a Journal;
// the Runtime drives both.
type Journal struct {
	adapter    adapters.JournalAdapter
	serializer Serializer
	logger     Logger
}

// Logger is the leveled logging surface the package writes to. The logging
// package bridges zerolog to it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger drops everything sent to it.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

// Option configures a Journal.
type Option func(*Journal)

// WithSerializer swaps the payload serializer. The default is JSON.
func WithSerializer(s Serializer) Option {
	return func(j *Journal) { j.serializer = s }
}

// WithLogger routes journal logging to l.
func WithLogger(l Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// NewJournal wires a Journal over the given storage adapter.
func NewJournal(adapter adapters.JournalAdapter, opts ...Option) *Journal {
	j := &Journal{adapter: adapter}
	for _, opt := range opts {
		opt(j)
	}
	if j.serializer == nil {
		j.serializer = NewJSONSerializer()
	}
	if j.logger == nil {
		j.logger = nopLogger{}
	}
	return j
}

// Serializer returns the journal's serializer.
func (j *Journal) Serializer() Serializer {
	return j.serializer
}

// Adapter exposes the wrapped storage adapter.
func (j *Journal) Adapter() adapters.JournalAdapter {
	return j.adapter
}

// RegisterEvents teaches the serializer the concrete event types it will be
// asked to decode. Serializers that do not keep a type registry ignore this.
func (j *Journal) RegisterEvents(events ...any) {
	if reg, ok := j.serializer.(interface{ RegisterAll(examples ...any) }); ok {
		reg.RegisterAll(events...)
	}
}

// AppendOption adjusts a single append.
type AppendOption func(*appendOpts)

type appendOpts struct {
	meta   Metadata
	expect int64
}

// ExpectVersion makes the append fail unless the stream is at version v.
func ExpectVersion(v int64) AppendOption {
	return func(o *appendOpts) { o.expect = v }
}

// WithAppendMetadata stamps every event in the append with m.
func WithAppendMetadata(m Metadata) AppendOption {
	return func(o *appendOpts) { o.meta = m }
}

// Append serializes the given payloads and stores them at the tail of the
// stream. Without ExpectVersion the append succeeds at any stream version.
func (j *Journal) Append(ctx context.Context, streamID string, events []any, opts ...AppendOption) error {
	if streamID == "" {
		return ErrEmptyStreamID
	}
	if len(events) == 0 {
		return ErrNoEvents
	}

	cfg := appendOpts{expect: AnyVersion}
	for _, opt := range opts {
		opt(&cfg)
	}

	records, err := j.toRecords(events, cfg.meta)
	if err != nil {
		return err
	}
	if _, err := j.adapter.Append(ctx, streamID, records, cfg.expect); err != nil {
		return err
	}

	j.logger.Debug("appended events", "streamId", streamID, "count", len(events))
	return nil
}

// toRecords serializes payloads into adapter records, stamping each with the
// shared append metadata.
func (j *Journal) toRecords(events []any, meta Metadata) ([]adapters.EventRecord, error) {
	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		ed, err := SerializeEvent(j.serializer, event, meta)
		if err != nil {
			return nil, fmt.Errorf("behave: failed to serialize event %d: %w", i, err)
		}
		records[i] = adapters.EventRecord{
			Type:     ed.Type,
			Data:     ed.Data,
			Metadata: toAdapterMetadata(ed.Metadata),
		}
	}
	return records, nil
}

// Load retrieves a stream's full event history.
func (j *Journal) Load(ctx context.Context, streamID string) ([]Event, error) {
	return j.LoadFrom(ctx, streamID, 0)
}

// LoadFrom retrieves a stream's events with versions greater than fromVersion,
// decoded through the serializer.
func (j *Journal) LoadFrom(ctx context.Context, streamID string, fromVersion int64) ([]Event, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	stored, err := j.adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(stored))
	for i, se := range stored {
		ev, err := DeserializeEvent(j.serializer, fromAdapterEvent(se))
		if err != nil {
			return nil, fmt.Errorf("behave: failed to deserialize event %d: %w", i, err)
		}
		events[i] = ev
	}
	return events, nil
}

// LoadHistory retrieves a stream's deserialized payloads in order, shaped to
// feed Behavior.Replay directly.
func (j *Journal) LoadHistory(ctx context.Context, streamID string) ([]any, error) {
	events, err := j.LoadFrom(ctx, streamID, 0)
	if err != nil {
		return nil, err
	}

	history := make([]any, len(events))
	for i, event := range events {
		history[i] = event.Data
	}
	return history, nil
}

// LoadRaw retrieves a stream's events without decoding the payloads.
func (j *Journal) LoadRaw(ctx context.Context, streamID string, fromVersion int64) ([]StoredEvent, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	stored, err := j.adapter.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}

	out := make([]StoredEvent, len(stored))
	for i, se := range stored {
		out[i] = fromAdapterEvent(se)
	}
	return out, nil
}

// StreamVersion returns a stream's current version, or NoStream (0) when the
// stream does not exist yet. Runtimes use it to form optimistic append
// expectations.
func (j *Journal) StreamVersion(ctx context.Context, streamID string) (int64, error) {
	if streamID == "" {
		return 0, ErrEmptyStreamID
	}

	info, err := j.adapter.GetStreamInfo(ctx, streamID)
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return NoStream, nil
		}
		return 0, err
	}
	return info.Version, nil
}

// GetStreamInfo reports a stream's kind, version, and lifecycle timestamps.
func (j *Journal) GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error) {
	if streamID == "" {
		return nil, ErrEmptyStreamID
	}

	info, err := j.adapter.GetStreamInfo(ctx, streamID)
	if err != nil {
		return nil, err
	}

	si := StreamInfo{
		StreamID:   info.StreamID,
		Kind:       info.Kind,
		EventCount: info.EventCount,
		Version:    info.Version,
		UpdatedAt:  info.UpdatedAt,
		CreatedAt:  info.CreatedAt,
	}
	return &si, nil
}

// GetLastPosition reports the global position of the newest stored event.
func (j *Journal) GetLastPosition(ctx context.Context) (uint64, error) {
	return j.adapter.GetLastPosition(ctx)
}

// SupportsSnapshots reports whether the underlying adapter can store
// snapshots.
func (j *Journal) SupportsSnapshots() bool {
	_, ok := j.adapter.(adapters.SnapshotAdapter)
	return ok
}

// SaveSnapshot stores an aggregate snapshot.
// Returns ErrSnapshotNotSupported if the adapter cannot store snapshots.
func (j *Journal) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	sa, ok := j.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return ErrSnapshotNotSupported
	}
	return sa.SaveSnapshot(ctx, streamID, version, data)
}

// LoadSnapshot retrieves the latest snapshot for a stream, or nil when none
// exists. Returns ErrSnapshotNotSupported if the adapter cannot store
// snapshots.
func (j *Journal) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	sa, ok := j.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return nil, ErrSnapshotNotSupported
	}
	return sa.LoadSnapshot(ctx, streamID)
}

// DeleteSnapshot removes the snapshot for a stream.
// Returns ErrSnapshotNotSupported if the adapter cannot store snapshots.
func (j *Journal) DeleteSnapshot(ctx context.Context, streamID string) error {
	sa, ok := j.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return ErrSnapshotNotSupported
	}
	return sa.DeleteSnapshot(ctx, streamID)
}

// Initialize creates the storage schema the adapter needs.
func (j *Journal) Initialize(ctx context.Context) error {
	return j.adapter.Initialize(ctx)
}

// Close releases resources held by the journal.
func (j *Journal) Close() error {
	return j.adapter.Close()
}

// Bridging between the root package's metadata and event shapes and the
// adapter package's wire-level copies of them.

func toAdapterMetadata(m Metadata) adapters.Metadata {
	return adapters.Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		TenantID:      m.TenantID,
		UserID:        m.UserID,
		CommandName:   m.CommandName,
		Custom:        m.Custom,
	}
}

func fromAdapterMetadata(m adapters.Metadata) Metadata {
	return Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		TenantID:      m.TenantID,
		UserID:        m.UserID,
		CommandName:   m.CommandName,
		Custom:        m.Custom,
	}
}

func fromAdapterEvent(s adapters.StoredEvent) StoredEvent {
	return StoredEvent{
		StreamID:       s.StreamID,
		Version:        s.Version,
		GlobalPosition: s.GlobalPosition,
		ID:             s.ID,
		Type:           s.Type,
		Data:           s.Data,
		Metadata:       fromAdapterMetadata(s.Metadata),
		Timestamp:      s.Timestamp,
	}
}
