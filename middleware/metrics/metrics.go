// Package metrics exports Prometheus instrumentation for behave runtimes,
// journals, and publishers.
//
// A single Metrics value owns every collector. Register it once, then hang
// its middleware wherever commands or events flow:
//
//	m := metrics.New(metrics.WithMetricsServiceName("orders"))
//	m.MustRegister()
//
//	runtime := behave.NewRuntime(behavior, journal,
//		behave.Use[Product](m.SubmitMiddleware()))
//
//	journal := behave.NewJournal(m.WrapJournal(adapter))
//
// Collected series cover command volume, latency, and in-flight gauges,
// rejection codes, journal operation outcomes, notification publishing, and
// error counts keyed by sentinel type.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AshkanYarmoradi/go-behave"
	"github.com/AshkanYarmoradi/go-behave/adapters"
)

// Label names shared by all series.
const (
	LabelCommandType   = "command_type"
	LabelEventType     = "event_type"
	LabelOperation     = "operation"
	LabelStatus        = "status"
	LabelErrorType     = "error_type"
	LabelRejectionCode = "code"
	LabelDestination   = "destination"
	LabelService       = "service"
)

// Values for the status label.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// Values for the operation label.
const (
	OperationAppend = "append"
	OperationLoad   = "load"
)

// Metrics bundles every collector behave emits. Create it with New and
// register it with a Prometheus registry before use.
type Metrics struct {
	namespace string
	subsystem string
	service   string

	commandsTotal               *prometheus.CounterVec
	commandDuration             *prometheus.HistogramVec
	commandsInFlight            *prometheus.GaugeVec
	rejectionsTotal             *prometheus.CounterVec
	journalOperationsTotal      *prometheus.CounterVec
	journalOperationDuration    *prometheus.HistogramVec
	eventsAppendedTotal         *prometheus.CounterVec // labeled per event type
	eventsLoadedTotal           *prometheus.CounterVec // service-wide, no type label
	notificationsPublishedTotal *prometheus.CounterVec
	publishDuration             *prometheus.HistogramVec
	errorsTotal                 *prometheus.CounterVec
}

// MetricsOption customizes Metrics.
type MetricsOption func(*Metrics)

// WithNamespace overrides the Prometheus namespace, "behave" by default.
func WithNamespace(namespace string) MetricsOption {
	return func(mx *Metrics) { mx.namespace = namespace }
}

// WithSubsystem places every series under a Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(mx *Metrics) { mx.subsystem = subsystem }
}

// WithMetricsServiceName sets the value of the service label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(mx *Metrics) { mx.service = name }
}

// New creates a Metrics instance. The namespace defaults to "behave" and the
// service label to "unknown".
func New(opts ...MetricsOption) *Metrics {
	mx := &Metrics{namespace: "behave", service: "unknown"}
	for _, o := range opts {
		o(mx)
	}
	mx.initMetrics()
	return mx
}

func (mx *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: mx.namespace,
		Subsystem: mx.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (mx *Metrics) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: mx.namespace,
		Subsystem: mx.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

func (mx *Metrics) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: mx.namespace,
		Subsystem: mx.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (mx *Metrics) initMetrics() {
	mx.commandsTotal = mx.counter("commands_total",
		"Total number of commands submitted.",
		LabelService, LabelCommandType, LabelStatus)
	mx.commandDuration = mx.histogram("command_duration_seconds",
		"Duration of command submission in seconds.",
		LabelService, LabelCommandType)
	mx.commandsInFlight = mx.gauge("commands_in_flight",
		"Number of commands currently being processed.",
		LabelService, LabelCommandType)
	mx.rejectionsTotal = mx.counter("rejections_total",
		"Total number of command rejections by rejection code.",
		LabelService, LabelCommandType, LabelRejectionCode)

	mx.journalOperationsTotal = mx.counter("journal_operations_total",
		"Total number of journal operations.",
		LabelService, LabelOperation, LabelStatus)
	mx.journalOperationDuration = mx.histogram("journal_operation_duration_seconds",
		"Duration of journal operations in seconds.",
		LabelService, LabelOperation)
	mx.eventsAppendedTotal = mx.counter("events_appended_total",
		"Total number of events appended to streams.",
		LabelService, LabelEventType)
	mx.eventsLoadedTotal = mx.counter("events_loaded_total",
		"Total number of events loaded from streams.",
		LabelService)

	mx.notificationsPublishedTotal = mx.counter("notifications_published_total",
		"Total number of notifications handed to publishers.",
		LabelService, LabelDestination, LabelStatus)
	mx.publishDuration = mx.histogram("publish_duration_seconds",
		"Duration of notification publishing in seconds.",
		LabelService, LabelDestination)

	mx.errorsTotal = mx.counter("errors_total",
		"Total number of errors by type.",
		LabelService, LabelErrorType)
}

// Collectors returns every collector, ready for registration.
func (mx *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		mx.commandsTotal,
		mx.commandDuration,
		mx.commandsInFlight,
		mx.rejectionsTotal,
		mx.journalOperationsTotal,
		mx.journalOperationDuration,
		mx.eventsAppendedTotal,
		mx.eventsLoadedTotal,
		mx.notificationsPublishedTotal,
		mx.publishDuration,
		mx.errorsTotal,
	}
}

// MustRegister registers every collector with the default registry and
// panics on conflict.
func (mx *Metrics) MustRegister() {
	prometheus.MustRegister(mx.Collectors()...)
}

// Register registers every collector with registry, stopping at the first
// failure.
func (mx *Metrics) Register(registry prometheus.Registerer) error {
	for _, c := range mx.Collectors() {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// SubmitMiddleware returns middleware that times submissions, tracks
// in-flight commands, and counts outcomes by status.
func (mx *Metrics) SubmitMiddleware() behave.Middleware {
	return func(next behave.SubmitFunc) behave.SubmitFunc {
		return func(ctx context.Context, aggregateID string, cmd any) (behave.SubmitResult, error) {
			cmdType := behave.CommandName(cmd)

			mx.commandsInFlight.WithLabelValues(mx.service, cmdType).Inc()
			defer mx.commandsInFlight.WithLabelValues(mx.service, cmdType).Dec()

			began := time.Now()
			res, err := next(ctx, aggregateID, cmd)
			mx.observeCommand(cmdType, time.Since(began), err)

			return res, err
		}
	}
}

// RecordSubmit records one command submission. It implements
// behave.MetricsCollector, so a Metrics instance can be plugged into
// behave.MetricsMiddleware directly. In-flight tracking requires
// SubmitMiddleware.
func (mx *Metrics) RecordSubmit(cmdType string, duration time.Duration, success bool, err error) {
	mx.observeCommand(cmdType, duration, err)
}

// observeCommand records duration, outcome status, and rejection or error
// counters for one submission.
func (mx *Metrics) observeCommand(cmdType string, duration time.Duration, err error) {
	mx.commandDuration.WithLabelValues(mx.service, cmdType).Observe(duration.Seconds())

	outcome := StatusSuccess
	switch {
	case err == nil:
	case behave.IsRejection(err):
		outcome = StatusRejected
		code := "rejection"
		if rej, ok := behave.AsRejection(err); ok {
			code = rej.Code.String()
		}
		mx.rejectionsTotal.WithLabelValues(mx.service, cmdType, code).Inc()
	default:
		outcome = StatusError
		mx.errorsTotal.WithLabelValues(mx.service, errorLabel(err)).Inc()
	}

	mx.commandsTotal.WithLabelValues(mx.service, cmdType, outcome).Inc()
}

// sentinelLabels pairs each known sentinel with its stable label value.
// Order matters where sentinels wrap each other; more specific ones first.
var sentinelLabels = []struct {
	err   error
	label string
}{
	{behave.ErrConcurrencyConflict, "concurrency_conflict"},
	{behave.ErrStreamNotFound, "stream_not_found"},
	{behave.ErrNoRoute, "no_route"},
	{behave.ErrValidationFailed, "validation_failed"},
	{behave.ErrCommandAlreadyProcessed, "command_already_processed"},
	{behave.ErrSubmitPanicked, "submit_panicked"},
	{behave.ErrSerializationFailed, "serialization_failed"},
	{behave.ErrEventTypeNotRegistered, "event_type_not_registered"},
	{behave.ErrUndefinedCreationFold, "undefined_creation_fold"},
	{behave.ErrNilCommand, "nil_command"},
	{behave.ErrRuntimeClosed, "runtime_closed"},
	{behave.ErrRateLimited, "rate_limited"},
	{adapters.ErrEmptyStreamID, "empty_stream_id"},
	{adapters.ErrNoEvents, "no_events"},
	{adapters.ErrInvalidVersion, "invalid_version"},
	{adapters.ErrAdapterClosed, "adapter_closed"},
}

// errorLabel maps known sentinel errors to stable label values.
func errorLabel(err error) string {
	if err == nil {
		return "none"
	}
	for _, sl := range sentinelLabels {
		if errors.Is(err, sl.err) {
			return sl.label
		}
	}
	return "unknown"
}

// JournalMiddleware instruments a JournalAdapter.
type JournalMiddleware struct {
	adapter adapters.JournalAdapter
	mx      *Metrics
}

// WrapJournal instruments adapter. The wrapper satisfies JournalAdapter and
// SnapshotAdapter, so it drops into a Journal unchanged.
func (mx *Metrics) WrapJournal(adapter adapters.JournalAdapter) *JournalMiddleware {
	return &JournalMiddleware{adapter: adapter, mx: mx}
}

// observeOp records duration and outcome for one journal operation and, when
// errType is non-empty, counts failures against errors_total.
func (mx *Metrics) observeOp(op string, began time.Time, err error, errType string) {
	mx.journalOperationDuration.WithLabelValues(mx.service, op).Observe(time.Since(began).Seconds())

	outcome := StatusSuccess
	if err != nil {
		outcome = StatusError
		if errType != "" {
			mx.errorsTotal.WithLabelValues(mx.service, errType).Inc()
		}
	}
	mx.journalOperationsTotal.WithLabelValues(mx.service, op, outcome).Inc()
}

// Append forwards to the wrapped adapter and, on success, bumps
// events_appended_total once per event type.
func (jm *JournalMiddleware) Append(ctx context.Context, streamID string, records []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	began := time.Now()
	out, err := jm.adapter.Append(ctx, streamID, records, expectedVersion)
	jm.mx.observeOp(OperationAppend, began, err, "append_error")

	if err == nil {
		for _, r := range records {
			jm.mx.eventsAppendedTotal.WithLabelValues(jm.mx.service, r.Type).Inc()
		}
	}
	return out, err
}

// Load forwards to the wrapped adapter and counts loaded events.
func (jm *JournalMiddleware) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	began := time.Now()
	loaded, err := jm.adapter.Load(ctx, streamID, fromVersion)
	jm.mx.observeOp(OperationLoad, began, err, "load_error")

	if err == nil {
		jm.mx.eventsLoadedTotal.WithLabelValues(jm.mx.service).Add(float64(len(loaded)))
	}
	return loaded, err
}

// GetStreamInfo forwards to the wrapped adapter with timing.
func (jm *JournalMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	began := time.Now()
	meta, err := jm.adapter.GetStreamInfo(ctx, streamID)
	jm.mx.observeOp("get_stream_info", began, err, "")
	return meta, err
}

// GetLastPosition forwards to the wrapped adapter with timing.
func (jm *JournalMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	began := time.Now()
	position, err := jm.adapter.GetLastPosition(ctx)
	jm.mx.observeOp("get_last_position", began, err, "")
	return position, err
}

// Initialize initializes the underlying adapter.
func (jm *JournalMiddleware) Initialize(ctx context.Context) error {
	return jm.adapter.Initialize(ctx)
}

// Close closes the underlying adapter.
func (jm *JournalMiddleware) Close() error {
	return jm.adapter.Close()
}

// SupportsSnapshots reports whether the underlying adapter stores snapshots.
func (jm *JournalMiddleware) SupportsSnapshots() bool {
	_, ok := jm.adapter.(adapters.SnapshotAdapter)
	return ok
}

// SaveSnapshot stores a snapshot with timing, or fails with
// ErrSnapshotNotSupported when the underlying adapter cannot.
func (jm *JournalMiddleware) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	snapshots, ok := jm.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return behave.ErrSnapshotNotSupported
	}

	began := time.Now()
	err := snapshots.SaveSnapshot(ctx, streamID, version, data)
	jm.mx.observeOp("save_snapshot", began, err, "snapshot_save_error")
	return err
}

// LoadSnapshot retrieves a snapshot with timing, or fails with
// ErrSnapshotNotSupported when the underlying adapter cannot.
func (jm *JournalMiddleware) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	snapshots, ok := jm.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return nil, behave.ErrSnapshotNotSupported
	}

	began := time.Now()
	snap, err := snapshots.LoadSnapshot(ctx, streamID)
	jm.mx.observeOp("load_snapshot", began, err, "")
	return snap, err
}

// DeleteSnapshot removes a snapshot, or fails with ErrSnapshotNotSupported
// when the underlying adapter cannot.
func (jm *JournalMiddleware) DeleteSnapshot(ctx context.Context, streamID string) error {
	snapshots, ok := jm.adapter.(adapters.SnapshotAdapter)
	if !ok {
		return behave.ErrSnapshotNotSupported
	}
	return snapshots.DeleteSnapshot(ctx, streamID)
}

// PublisherMiddleware instruments a Publisher.
type PublisherMiddleware struct {
	publisher behave.Publisher
	mx        *Metrics
}

// WrapPublisher instruments publisher.
func (mx *Metrics) WrapPublisher(publisher behave.Publisher) *PublisherMiddleware {
	return &PublisherMiddleware{publisher: publisher, mx: mx}
}

// Publish times delivery and adds one notifications_published_total sample
// per notification, labeled with the destination and outcome.
func (pm *PublisherMiddleware) Publish(ctx context.Context, notes []*behave.Notification) error {
	dest := pm.publisher.Destination()

	began := time.Now()
	err := pm.publisher.Publish(ctx, notes)
	pm.mx.publishDuration.WithLabelValues(pm.mx.service, dest).Observe(time.Since(began).Seconds())

	outcome := StatusSuccess
	if err != nil {
		outcome = StatusError
		pm.mx.errorsTotal.WithLabelValues(pm.mx.service, "publish_error").Inc()
	}
	pm.mx.notificationsPublishedTotal.WithLabelValues(pm.mx.service, dest, outcome).Add(float64(len(notes)))

	return err
}

// Destination returns the wrapped publisher's destination.
func (pm *PublisherMiddleware) Destination() string {
	return pm.publisher.Destination()
}

// Close closes the wrapped publisher if it supports closing.
func (pm *PublisherMiddleware) Close() error {
	if closer, ok := pm.publisher.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// RecordError counts a caller-defined error type against errors_total.
func (mx *Metrics) RecordError(errorType string) {
	mx.errorsTotal.WithLabelValues(mx.service, errorType).Inc()
}

// CommandsTotal returns the commands_total counter.
func (mx *Metrics) CommandsTotal() *prometheus.CounterVec {
	return mx.commandsTotal
}

// CommandDuration returns the command_duration_seconds histogram.
func (mx *Metrics) CommandDuration() *prometheus.HistogramVec {
	return mx.commandDuration
}

// CommandsInFlight returns the commands_in_flight gauge.
func (mx *Metrics) CommandsInFlight() *prometheus.GaugeVec {
	return mx.commandsInFlight
}

// RejectionsTotal returns the rejections_total counter.
func (mx *Metrics) RejectionsTotal() *prometheus.CounterVec {
	return mx.rejectionsTotal
}

// JournalOperationsTotal returns the journal_operations_total counter.
func (mx *Metrics) JournalOperationsTotal() *prometheus.CounterVec {
	return mx.journalOperationsTotal
}

// JournalOperationDuration returns the journal_operation_duration_seconds
// histogram.
func (mx *Metrics) JournalOperationDuration() *prometheus.HistogramVec {
	return mx.journalOperationDuration
}

// EventsAppendedTotal returns the events_appended_total counter.
func (mx *Metrics) EventsAppendedTotal() *prometheus.CounterVec {
	return mx.eventsAppendedTotal
}

// EventsLoadedTotal returns the events_loaded_total counter.
func (mx *Metrics) EventsLoadedTotal() *prometheus.CounterVec {
	return mx.eventsLoadedTotal
}

// NotificationsPublishedTotal returns the notifications_published_total
// counter.
func (mx *Metrics) NotificationsPublishedTotal() *prometheus.CounterVec {
	return mx.notificationsPublishedTotal
}

// PublishDuration returns the publish_duration_seconds histogram.
func (mx *Metrics) PublishDuration() *prometheus.HistogramVec {
	return mx.publishDuration
}

// ErrorsTotal returns the errors_total counter.
func (mx *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return mx.errorsTotal
}

// Interface assertions.
var (
	_ behave.MetricsCollector  = (*Metrics)(nil)
	_ adapters.JournalAdapter  = (*JournalMiddleware)(nil)
	_ adapters.SnapshotAdapter = (*JournalMiddleware)(nil)
	_ behave.Publisher         = (*PublisherMiddleware)(nil)
)
