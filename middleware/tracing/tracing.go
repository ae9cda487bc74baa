// Package tracing instruments behave with OpenTelemetry spans.
//
// Command submission, journal operations, and notification publishing each
// get a span carrying the command or stream identity, the outcome, and the
// correlation metadata present on the context:
//
//	provider := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(provider)
//
//	tr := tracing.NewTracer()
//	runtime := behave.NewRuntime(behavior, journal,
//		behave.Use[Product](tracing.SubmitMiddleware(tr)))
//
// Rejections keep an Ok span status. A rejected command is a decided
// outcome, not a processing failure, so only hard errors mark spans as
// failed.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AshkanYarmoradi/go-behave"
	"github.com/AshkanYarmoradi/go-behave/adapters"
)

const (
	// TracerName is the name of the behave tracer.
	TracerName = "github.com/AshkanYarmoradi/go-behave"

	// DefaultServiceName labels spans unless WithServiceName overrides it.
	DefaultServiceName = "behave"
)

// Tracer wraps an OpenTelemetry tracer for behave operations.
type Tracer struct {
	inner   trace.Tracer
	service string
}

// TracerOption customizes a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sources spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(tr *Tracer) { tr.inner = tp.Tracer(TracerName) }
}

// WithServiceName changes the service label spans carry.
func WithServiceName(name string) TracerOption {
	return func(tr *Tracer) { tr.service = name }
}

// NewTracer creates a Tracer backed by the global TracerProvider unless
// WithTracerProvider overrides it.
func NewTracer(opts ...TracerOption) *Tracer {
	tr := &Tracer{inner: otel.Tracer(TracerName), service: DefaultServiceName}
	for _, o := range opts {
		o(tr)
	}
	return tr
}

// StartSpan opens a span named name on the underlying tracer.
func (tr *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tr.inner.Start(ctx, name, opts...)
}

// Tracer exposes the wrapped OpenTelemetry tracer.
func (tr *Tracer) Tracer() trace.Tracer {
	return tr.inner
}

// ServiceName reports the service label spans carry.
func (tr *Tracer) ServiceName() string {
	return tr.service
}

// span starts a span of the given kind with the service attribute plus attrs
// already attached.
func (tr *Tracer) span(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, s := tr.inner.Start(ctx, name, trace.WithSpanKind(kind))
	s.SetAttributes(attribute.String("behave.service", tr.service))
	s.SetAttributes(attrs...)
	return ctx, s
}

// finishSpan stamps the span status from err, recording the error when set.
func finishSpan(s trace.Span, err error) {
	if err != nil {
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
		return
	}
	s.SetStatus(codes.Ok, "")
}

// SubmitMiddleware creates middleware that traces command submission.
func SubmitMiddleware(tr *Tracer) behave.Middleware {
	return func(next behave.SubmitFunc) behave.SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (behave.SubmitResult, error) {
			cmdType := behave.CommandName(cmd)

			ctx, sp := tr.span(ctx, "submit."+cmdType, trace.SpanKindInternal,
				attribute.String("behave.command.type", cmdType),
				attribute.String("behave.command.aggregate_id", aggregateID),
			)
			defer sp.End()

			if id := behave.CorrelationIDFromContext(ctx); id != "" {
				sp.SetAttributes(attribute.String("behave.correlation_id", id))
			}
			if id := behave.CausationIDFromContext(ctx); id != "" {
				sp.SetAttributes(attribute.String("behave.causation_id", id))
			}

			res, err := next(ctx, aggregateID, cmd)

			switch {
			case err == nil:
				finishSpan(sp, nil)
				sp.SetAttributes(
					attribute.String("behave.result.aggregate_id", res.AggregateID),
					attribute.Int64("behave.result.version", res.Version),
					attribute.Bool("behave.result.created", res.Created),
					attribute.Int("behave.result.events", len(res.Events)),
				)
			case behave.IsRejection(err):
				finishSpan(sp, nil)
				sp.SetAttributes(attribute.Bool("behave.rejected", true))
				if rej, ok := behave.AsRejection(err); ok {
					sp.SetAttributes(
						attribute.String("behave.rejection.code", rej.Code.String()),
						attribute.String("behave.rejection.reason", rej.Reason),
					)
				}
			default:
				finishSpan(sp, err)
			}

			return res, err
		}
	}
}

// JournalMiddleware wraps a JournalAdapter with tracing.
type JournalMiddleware struct {
	adapter adapters.JournalAdapter
	tr      *Tracer
}

// NewJournalMiddleware wraps an adapter with tracing.
func NewJournalMiddleware(adapter adapters.JournalAdapter, tracer *Tracer) *JournalMiddleware {
	return &JournalMiddleware{adapter: adapter, tr: tracer}
}

// span starts a client span named after the journal operation.
func (j *JournalMiddleware) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return j.tr.span(ctx, "journal."+op, trace.SpanKindClient, attrs...)
}

// Append stores events under a journal.append span. On success the span also
// carries the resulting version and global position.
func (j *JournalMiddleware) Append(ctx context.Context, streamID string, records []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	ctx, sp := j.span(ctx, "append",
		attribute.String("behave.stream_id", streamID),
		attribute.Int64("behave.expected_version", expectedVersion),
		attribute.Int("behave.events.count", len(records)),
	)
	defer sp.End()

	if len(records) > 0 {
		sp.SetAttributes(attribute.StringSlice("behave.events.types", recordTypes(records)))
	}

	out, err := j.adapter.Append(ctx, streamID, records, expectedVersion)
	finishSpan(sp, err)

	if err == nil && len(out) > 0 {
		last := out[len(out)-1]
		sp.SetAttributes(
			attribute.Int64("behave.stored.version", last.Version),
			attribute.Int64("behave.stored.global_position", int64(last.GlobalPosition)),
		)
	}
	return out, err
}

// Load retrieves events under a journal.load span.
func (j *JournalMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	ctx, sp := j.span(ctx, "load",
		attribute.String("behave.stream_id", streamID),
		attribute.Int64("behave.from_version", fromVersion),
	)
	defer sp.End()

	loaded, err := j.adapter.Load(ctx, streamID, fromVersion)
	finishSpan(sp, err)

	if err == nil {
		sp.SetAttributes(attribute.Int("behave.events.loaded", len(loaded)))
	}
	return loaded, err
}

// GetStreamInfo returns stream metadata under a journal.get_stream_info span.
func (j *JournalMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, sp := j.span(ctx, "get_stream_info",
		attribute.String("behave.stream_id", streamID),
	)
	defer sp.End()

	meta, err := j.adapter.GetStreamInfo(ctx, streamID)
	finishSpan(sp, err)

	if err == nil {
		sp.SetAttributes(attribute.Int64("behave.stream.version", meta.Version))
	}
	return meta, err
}

// GetLastPosition returns the last global position under a
// journal.get_last_position span.
func (j *JournalMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	ctx, sp := j.span(ctx, "get_last_position")
	defer sp.End()

	position, err := j.adapter.GetLastPosition(ctx)
	finishSpan(sp, err)

	if err == nil {
		sp.SetAttributes(attribute.Int64("behave.last_position", int64(position)))
	}
	return position, err
}

// Initialize initializes the adapter under a journal.initialize span.
func (j *JournalMiddleware) Initialize(ctx context.Context) error {
	ctx, sp := j.span(ctx, "initialize")
	defer sp.End()

	err := j.adapter.Initialize(ctx)
	finishSpan(sp, err)
	return err
}

// Close closes the adapter.
func (j *JournalMiddleware) Close() error {
	return j.adapter.Close()
}

// SupportsSnapshots reports whether the underlying adapter stores snapshots.
func (j *JournalMiddleware) SupportsSnapshots() bool {
	_, ok := j.adapter.(adapters.SnapshotAdapter)
	return ok
}

// SaveSnapshot stores a snapshot under a journal.save_snapshot span, or
// fails with ErrSnapshotNotSupported without opening one.
func (j *JournalMiddleware) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	snapshots, ok := j.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return behave.ErrSnapshotNotSupported
	}

	ctx, sp := j.span(ctx, "save_snapshot",
		attribute.String("behave.stream_id", streamID),
		attribute.Int64("behave.snapshot.version", version),
	)
	defer sp.End()

	err := snapshots.SaveSnapshot(ctx, streamID, version, data)
	finishSpan(sp, err)
	return err
}

// LoadSnapshot retrieves a snapshot under a journal.load_snapshot span, or
// fails with ErrSnapshotNotSupported without opening one.
func (j *JournalMiddleware) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	snapshots, ok := j.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return nil, behave.ErrSnapshotNotSupported
	}

	ctx, sp := j.span(ctx, "load_snapshot",
		attribute.String("behave.stream_id", streamID),
	)
	defer sp.End()

	snap, err := snapshots.LoadSnapshot(ctx, streamID)
	finishSpan(sp, err)

	if err == nil && snap != nil {
		sp.SetAttributes(attribute.Int64("behave.snapshot.version", snap.Version))
	}
	return snap, err
}

// DeleteSnapshot removes a snapshot, or fails with ErrSnapshotNotSupported
// when the underlying adapter cannot.
func (j *JournalMiddleware) DeleteSnapshot(ctx context.Context, streamID string) error {
	snapshots, ok := j.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return behave.ErrSnapshotNotSupported
	}
	return snapshots.DeleteSnapshot(ctx, streamID)
}

func recordTypes(records []adapters.EventRecord) []string {
	types := make([]string, len(records))
	for i, r := range records {
		types[i] = r.Type
	}
	return types
}

// PublisherMiddleware wraps a Publisher with tracing.
type PublisherMiddleware struct {
	publisher behave.Publisher
	tr        *Tracer
}

// NewPublisherMiddleware wraps a publisher with tracing.
func NewPublisherMiddleware(publisher behave.Publisher, tracer *Tracer) *PublisherMiddleware {
	return &PublisherMiddleware{publisher: publisher, tr: tracer}
}

// Publish delivers notifications under a producer span named after the
// destination.
func (p *PublisherMiddleware) Publish(ctx context.Context, notes []*behave.Notification) error {
	dest := p.publisher.Destination()

	ctx, sp := p.tr.span(ctx, "publish."+dest, trace.SpanKindProducer,
		attribute.String("behave.publish.destination", dest),
		attribute.Int("behave.publish.count", len(notes)),
	)
	defer sp.End()

	if len(notes) > 0 {
		types := make([]string, len(notes))
		for i, n := range notes {
			types[i] = n.EventType
		}
		sp.SetAttributes(attribute.StringSlice("behave.publish.event_types", types))
	}

	err := p.publisher.Publish(ctx, notes)
	finishSpan(sp, err)
	return err
}

// Destination returns the wrapped publisher's destination.
func (p *PublisherMiddleware) Destination() string {
	return p.publisher.Destination()
}

// Close closes the wrapped publisher if it supports closing.
func (p *PublisherMiddleware) Close() error {
	if closer, ok := p.publisher.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// SpanFromContext pulls the active span off ctx.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent appends a named event to the active span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError records err on the current span and marks it failed.
func SetError(ctx context.Context, err error) {
	finishSpan(trace.SpanFromContext(ctx), err)
}

// SetAttributes stamps attrs on the active span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// Interface assertions.
var (
	_ adapters.JournalAdapter  = (*JournalMiddleware)(nil)
	_ adapters.SnapshotAdapter = (*JournalMiddleware)(nil)
	_ behave.Publisher         = (*PublisherMiddleware)(nil)
)
