package behave

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// SubmitResult describes a successfully processed command.
type SubmitResult struct {
	// AggregateID identifies the aggregate the command addressed.
	AggregateID string

	// Kind is the aggregate kind.
	Kind string

	// Version is the stream version after the append.
	Version int64

	// Events holds the emitted events in emission order.
	Events []any

	// Created reports whether this submit created the aggregate.
	Created bool
}

// AsyncSubmitResult carries the outcome of an asynchronous submit.
type AsyncSubmitResult struct {
	Result SubmitResult
	Err    error
}

// SubmitFunc is the function signature wrapped by middleware.
type SubmitFunc func(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error)

// Middleware wraps command submission with cross-cutting concerns.
type Middleware func(next SubmitFunc) SubmitFunc

// ChainMiddleware applies middleware to base in reverse order, so the first
// element of mw becomes the outermost wrapper.
func ChainMiddleware(base SubmitFunc, mw ...Middleware) SubmitFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		base = mw[i](base)
	}
	return base
}

// Runtime drives a Behavior against a Journal. Each submit runs the full
// decide cycle for one aggregate: load and replay the stream, validate the
// command, append the emitted events with an exact optimistic concurrency
// expectation, and fold them forward. A keyed lock table serializes submits
// per aggregate id, so commands for one aggregate are decided one at a time
// while different aggregates proceed in parallel.
type Runtime[A Aggregate] struct {
	behavior *Behavior[A]
	journal  *Journal
	logger   Logger
	clock    func() time.Time

	middleware []Middleware
	chain      SubmitFunc

	broadcaster   *Broadcaster
	snapshotEvery int64

	locks  idLocks
	closed atomic.Bool
}

// RuntimeOption configures a Runtime.
type RuntimeOption[A Aggregate] func(*Runtime[A])

// WithRuntimeLogger sets the runtime's logger.
func WithRuntimeLogger[A Aggregate](l Logger) RuntimeOption[A] {
	return func(r *Runtime[A]) {
		r.logger = l
	}
}

// WithSnapshots enables snapshotting every n events. Replays then start from
// the latest snapshot instead of the stream head. The aggregate state must
// round-trip through encoding/json for snapshots to be usable.
func WithSnapshots[A Aggregate](every int) RuntimeOption[A] {
	return func(r *Runtime[A]) {
		r.snapshotEvery = int64(every)
	}
}

// WithBroadcaster attaches a post-commit broadcaster. Appended events are
// handed to it after every successful submit, best effort.
func WithBroadcaster[A Aggregate](b *Broadcaster) RuntimeOption[A] {
	return func(r *Runtime[A]) {
		r.broadcaster = b
	}
}

// WithClock overrides the time source used for notification timestamps.
func WithClock[A Aggregate](clock func() time.Time) RuntimeOption[A] {
	return func(r *Runtime[A]) {
		r.clock = clock
	}
}

// Use appends middleware around the submit pipeline. The first middleware
// registered is the outermost wrapper.
func Use[A Aggregate](mw ...Middleware) RuntimeOption[A] {
	return func(r *Runtime[A]) {
		r.middleware = append(r.middleware, mw...)
	}
}

// NewRuntime creates a Runtime for the given behavior and journal.
// Both must be non-nil.
func NewRuntime[A Aggregate](behavior *Behavior[A], journal *Journal, opts ...RuntimeOption[A]) *Runtime[A] {
	r := &Runtime[A]{
		behavior: behavior,
		journal:  journal,
		logger:   nopLogger{},
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.snapshotEvery > 0 && !journal.SupportsSnapshots() {
		r.logger.Warn("snapshots disabled: adapter does not support them", "kind", behavior.Kind())
		r.snapshotEvery = 0
	}

	r.locks.init()
	r.chain = ChainMiddleware(r.process, r.middleware...)
	return r
}

// Kind returns the aggregate kind this runtime serves.
func (r *Runtime[A]) Kind() string {
	return r.behavior.Kind()
}

// Behavior returns the behavior this runtime drives.
func (r *Runtime[A]) Behavior() *Behavior[A] {
	return r.behavior
}

// Journal returns the journal this runtime appends to.
func (r *Runtime[A]) Journal() *Journal {
	return r.journal
}

// Submit runs one command through the full decide cycle. Rejections come
// back as a *Rejection error; optimistic concurrency conflicts surface as a
// *ConcurrencyError, which only happens when another writer bypasses this
// runtime's lock table (a second process, or a direct journal append).
func (r *Runtime[A]) Submit(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
	if r.closed.Load() {
		return SubmitResult{}, ErrRuntimeClosed
	}
	return r.chain(ctx, aggregateID, cmd)
}

// SubmitAsync runs Submit in a goroutine and returns a buffered channel that
// receives the single result and is then closed.
func (r *Runtime[A]) SubmitAsync(ctx context.Context, aggregateID string, cmd any) <-chan AsyncSubmitResult {
	out := make(chan AsyncSubmitResult, 1)
	go func() {
		defer close(out)
		result, err := r.Submit(ctx, aggregateID, cmd)
		out <- AsyncSubmitResult{Result: result, Err: err}
	}()
	return out
}

// State replays an aggregate and returns its current state and version.
// Returns a *StreamNotFoundError when the aggregate does not exist.
func (r *Runtime[A]) State(ctx context.Context, aggregateID string) (A, int64, error) {
	var zero A
	if r.closed.Load() {
		return zero, 0, ErrRuntimeClosed
	}
	if aggregateID == "" {
		return zero, 0, ErrEmptyStreamID
	}

	streamID := BuildStreamID(r.behavior.Kind(), aggregateID)
	agg, version, exists, err := r.loadState(ctx, streamID)
	if err != nil {
		return zero, 0, err
	}
	if !exists {
		return zero, 0, NewStreamNotFoundError(streamID)
	}
	return agg, version, nil
}

// Close marks the runtime closed. In-flight submits finish; later ones fail
// with ErrRuntimeClosed. The journal is not closed, it may be shared.
func (r *Runtime[A]) Close() error {
	r.closed.Store(true)
	return nil
}

// process is the innermost SubmitFunc, below all middleware.
func (r *Runtime[A]) process(ctx context.Context, aggregateID string, cmd any) (SubmitResult, error) {
	if cmd == nil {
		return SubmitResult{}, ErrNilCommand
	}
	if aggregateID == "" {
		return SubmitResult{}, NewValidationError(CommandName(cmd), "aggregateID", "must not be empty")
	}

	unlock := r.locks.lock(aggregateID)
	defer unlock()

	streamID := BuildStreamID(r.behavior.Kind(), aggregateID)

	agg, version, exists, err := r.loadState(ctx, streamID)
	if err != nil {
		return SubmitResult{}, err
	}

	var (
		newEvents []any
		expected  int64
		created   bool
	)
	if !exists {
		event, verr := r.behavior.ValidateCreation(ctx, cmd)
		if verr != nil {
			return SubmitResult{}, verr
		}
		if !r.behavior.IsCreationEventDefined(event) {
			return SubmitResult{}, NewUndefinedFoldError(r.behavior.Kind(), EventName(event))
		}
		newEvents = []any{event}
		expected = NoStream
		created = true
	} else {
		events, verr := r.behavior.ValidateUpdate(ctx, cmd, agg)
		if verr != nil {
			return SubmitResult{}, verr
		}
		newEvents = events
		expected = version
	}

	// A submit canceled mid-validation must not append: the events were
	// decided against a snapshot the caller no longer stands behind.
	if err := ctx.Err(); err != nil {
		r.logger.Debug("discarding validated events after cancellation",
			"streamId", streamID, "command", CommandName(cmd), "count", len(newEvents))
		return SubmitResult{}, err
	}

	metadata := MetadataFromContext(ctx).WithCommandName(CommandName(cmd))
	if err := r.journal.Append(ctx, streamID, newEvents, ExpectVersion(expected), WithAppendMetadata(metadata)); err != nil {
		return SubmitResult{}, err
	}

	if created {
		agg, err = r.behavior.ApplyCreation(newEvents[0])
		if err != nil {
			return SubmitResult{}, err
		}
		for _, event := range newEvents[1:] {
			agg = r.behavior.ApplyUpdate(agg, event)
		}
	} else {
		for _, event := range newEvents {
			agg = r.behavior.ApplyUpdate(agg, event)
		}
	}

	newVersion := version + int64(len(newEvents))
	r.maybeSnapshot(ctx, streamID, agg, version, newVersion)
	r.broadcast(ctx, streamID, aggregateID, newEvents, version, metadata)

	r.logger.Info("command processed",
		"kind", r.behavior.Kind(),
		"aggregateId", aggregateID,
		"command", CommandName(cmd),
		"events", len(newEvents),
		"version", newVersion,
		"created", created)

	return SubmitResult{
		AggregateID: aggregateID,
		Kind:        r.behavior.Kind(),
		Version:     newVersion,
		Events:      newEvents,
		Created:     created,
	}, nil
}

// loadState replays a stream into the current state, using the latest
// snapshot as the starting point when snapshotting is enabled.
func (r *Runtime[A]) loadState(ctx context.Context, streamID string) (A, int64, bool, error) {
	var (
		zero         A
		agg          A
		startVersion int64
		haveSnapshot bool
	)

	if r.snapshotEvery > 0 {
		snap, err := r.journal.LoadSnapshot(ctx, streamID)
		if err != nil && !errors.Is(err, ErrSnapshotNotSupported) {
			return zero, 0, false, err
		}
		if snap != nil {
			var state A
			if uerr := json.Unmarshal(snap.Data, &state); uerr != nil {
				r.logger.Warn("discarding unreadable snapshot",
					"streamId", streamID, "version", snap.Version, "error", uerr)
			} else {
				agg = state
				startVersion = snap.Version
				haveSnapshot = true
			}
		}
	}

	events, err := r.journal.LoadFrom(ctx, streamID, startVersion)
	if err != nil {
		return zero, 0, false, err
	}

	if !haveSnapshot {
		if len(events) == 0 {
			return zero, 0, false, nil
		}
		history := make([]any, len(events))
		for i, event := range events {
			history[i] = event.Data
		}
		agg, err = r.behavior.Replay(history...)
		if err != nil {
			return zero, 0, false, err
		}
		return agg, events[len(events)-1].Version, true, nil
	}

	for _, event := range events {
		agg = r.behavior.ApplyUpdate(agg, event.Data)
	}
	version := startVersion
	if len(events) > 0 {
		version = events[len(events)-1].Version
	}
	return agg, version, true, nil
}

// maybeSnapshot saves a snapshot when the stream crossed a snapshot boundary
// in this submit. Snapshot failures are logged, never surfaced: the journal
// already holds the events.
func (r *Runtime[A]) maybeSnapshot(ctx context.Context, streamID string, agg A, oldVersion, newVersion int64) {
	if r.snapshotEvery <= 0 || newVersion/r.snapshotEvery == oldVersion/r.snapshotEvery {
		return
	}

	data, err := json.Marshal(agg)
	if err != nil {
		r.logger.Warn("snapshot serialization failed", "streamId", streamID, "error", err)
		return
	}
	if err := r.journal.SaveSnapshot(ctx, streamID, newVersion, data); err != nil {
		r.logger.Warn("snapshot save failed", "streamId", streamID, "version", newVersion, "error", err)
		return
	}
	r.logger.Debug("snapshot saved", "streamId", streamID, "version", newVersion)
}

// broadcast hands the freshly appended events to the broadcaster, if any.
// Each notification carries the event serialized the way the journal stored
// it, so publishers never re-encode.
func (r *Runtime[A]) broadcast(ctx context.Context, streamID, aggregateID string, events []any, baseVersion int64, metadata Metadata) {
	if r.broadcaster == nil {
		return
	}

	notes := make([]*Notification, 0, len(events))
	now := r.clock()
	for i, event := range events {
		eventData, err := SerializeEvent(r.journal.Serializer(), event, metadata)
		if err != nil {
			// The append already serialized this event, so this cannot
			// normally fail. Skip the notification rather than publish a
			// half-built one.
			r.logger.Warn("skipping notification for unserializable event",
				"streamId", streamID, "eventType", EventName(event), "error", err)
			continue
		}

		notes = append(notes, &Notification{
			StreamID:    streamID,
			Kind:        r.behavior.Kind(),
			AggregateID: aggregateID,
			EventType:   eventData.Type,
			Event:       event,
			Payload:     eventData.Data,
			Headers: map[string]string{
				"stream-id":      streamID,
				"event-type":     eventData.Type,
				"correlation-id": metadata.CorrelationID,
				"causation-id":   metadata.CausationID,
			},
			Version:   baseVersion + int64(i) + 1,
			Timestamp: now,
			Metadata:  metadata,
		})
	}
	r.broadcaster.Broadcast(ctx, notes)
}

// idLocks is a refcounted keyed mutex table. Entries exist only while some
// goroutine holds or waits on the key.
type idLocks struct {
	mu      sync.Mutex
	entries map[string]*idLockEntry
}

type idLockEntry struct {
	mu   sync.Mutex
	refs int
}

func (l *idLocks) init() {
	l.entries = make(map[string]*idLockEntry)
}

func (l *idLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &idLockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
