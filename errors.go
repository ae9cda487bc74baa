package behave

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

// Sentinels for the failure classes the engine reports. Match them with
// errors.Is; the detailed types below wrap them and carry context for
// errors.As.
var (
	// ErrCommandRejected is the sentinel behind every *Rejection. A match
	// means a decision rule refused the command, not that processing failed.
	ErrCommandRejected = errors.New("behave: command rejected")

	// ErrUndefinedCreationFold reports a creation event with no matching
	// fold rule. The history holds an event this rule set never produced,
	// so it signals corrupted data or a schema mismatch rather than a
	// per-command failure.
	ErrUndefinedCreationFold = errors.New("behave: no creation fold defined for event")

	// ErrIncompleteBehavior reports a Build call on a builder that is
	// missing required rule stages.
	ErrIncompleteBehavior = errors.New("behave: incomplete behavior")

	// ErrEmptyHistory reports a replay attempted over zero events.
	ErrEmptyHistory = errors.New("behave: empty event history")

	// ErrNilCommand reports a nil command handed to Submit.
	ErrNilCommand = errors.New("behave: nil command")

	// ErrNilEvent reports a nil event handed to a fold or append.
	ErrNilEvent = errors.New("behave: nil event")

	// ErrSerializationFailed covers every encode and decode failure in a
	// Serializer.
	ErrSerializationFailed = errors.New("behave: serialization failed")

	// ErrEventTypeNotRegistered reports an event type the journal has no
	// registered factory for.
	ErrEventTypeNotRegistered = errors.New("behave: event type not registered")

	// ErrSnapshotNotSupported reports a snapshot call against an adapter
	// that only implements the journal interface.
	ErrSnapshotNotSupported = errors.New("behave: adapter does not support snapshots")

	// ErrValidationFailed reports a command that failed its own Validate.
	ErrValidationFailed = errors.New("behave: validation failed")

	// ErrCommandAlreadyProcessed reports a command ID the idempotency
	// guard has already seen.
	ErrCommandAlreadyProcessed = errors.New("behave: command already processed")

	// ErrSubmitPanicked reports a panic recovered during Submit.
	ErrSubmitPanicked = errors.New("behave: submit panicked")

	// ErrRuntimeClosed reports a Submit after Close.
	ErrRuntimeClosed = errors.New("behave: runtime closed")

	// ErrNoRoute reports a command type no runtime is registered for.
	ErrNoRoute = errors.New("behave: no route for command")

	// ErrKindAlreadyRegistered reports a duplicate kind registration on a
	// router.
	ErrKindAlreadyRegistered = errors.New("behave: kind already registered")

	// ErrRateLimited reports a submit refused by the rate limiter.
	ErrRateLimited = errors.New("behave: rate limited")
)

// Stream-level sentinels alias the adapters package, so an error raised
// inside an adapter matches these without translation.
var (
	ErrStreamNotFound      = adapters.ErrStreamNotFound
	ErrConcurrencyConflict = adapters.ErrConcurrencyConflict
	ErrEmptyStreamID       = adapters.ErrEmptyStreamID
	ErrNoEvents            = adapters.ErrNoEvents
	ErrInvalidVersion      = adapters.ErrInvalidVersion
	ErrAdapterClosed       = adapters.ErrAdapterClosed
)

// UndefinedFoldError reports a creation event with no matching fold rule.
// It points at corrupted history or a behavior/event-schema mismatch and
// should be surfaced as a data-integrity incident, not handled per command.
type UndefinedFoldError struct {
	Kind      string
	EventType string
}

// NewUndefinedFoldError builds an UndefinedFoldError for the given behavior kind.
func NewUndefinedFoldError(kind, eventType string) *UndefinedFoldError {
	return &UndefinedFoldError{Kind: kind, EventType: eventType}
}

func (uf *UndefinedFoldError) Error() string {
	return fmt.Sprintf("behave: no creation fold defined for event type %q in behavior %q",
		uf.EventType, uf.Kind)
}

func (uf *UndefinedFoldError) Is(target error) bool { return target == ErrUndefinedCreationFold }

func (uf *UndefinedFoldError) Unwrap() error { return ErrUndefinedCreationFold }

// BuildError reports why a behavior could not be built, naming the missing
// stages.
type BuildError struct {
	Kind    string
	Missing []string
}

// NewBuildError builds a BuildError listing the stages still missing.
func NewBuildError(kind string, missing ...string) *BuildError {
	return &BuildError{Kind: kind, Missing: missing}
}

func (be *BuildError) Error() string {
	if len(be.Missing) == 0 {
		return fmt.Sprintf("behave: behavior %q is incomplete", be.Kind)
	}
	return fmt.Sprintf("behave: behavior %q is incomplete: missing %v", be.Kind, be.Missing)
}

func (be *BuildError) Is(target error) bool { return target == ErrIncompleteBehavior }

func (be *BuildError) Unwrap() error { return ErrIncompleteBehavior }

// ConcurrencyError carries the stream and version pair behind a failed
// optimistic concurrency check.
type ConcurrencyError struct {
	ExpectedVersion int64
	ActualVersion   int64
	StreamID        string
}

// NewConcurrencyError builds a ConcurrencyError for the given stream.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{ExpectedVersion: expected, ActualVersion: actual, StreamID: streamID}
}

func (ce *ConcurrencyError) Error() string {
	return fmt.Sprintf("behave: concurrency conflict on stream %q: expected version %d, got %d",
		ce.StreamID, ce.ExpectedVersion, ce.ActualVersion)
}

func (ce *ConcurrencyError) Is(target error) bool { return target == ErrConcurrencyConflict }

func (ce *ConcurrencyError) Unwrap() error { return ErrConcurrencyConflict }

// StreamNotFoundError identifies which stream a lookup failed on.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError builds a StreamNotFoundError for the given stream.
func NewStreamNotFoundError(id string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: id}
}

func (nf *StreamNotFoundError) Error() string {
	return fmt.Sprintf("behave: stream %q not found", nf.StreamID)
}

func (nf *StreamNotFoundError) Is(target error) bool { return target == ErrStreamNotFound }

func (nf *StreamNotFoundError) Unwrap() error { return ErrStreamNotFound }

// SerializationError identifies the event type and direction of a failed
// encode or decode.
type SerializationError struct {
	EventType string
	Operation string // either "serialize" or "deserialize"
	Cause     error
}

// NewSerializationError builds a SerializationError wrapping cause.
func NewSerializationError(eventType, op string, cause error) *SerializationError {
	return &SerializationError{EventType: eventType, Operation: op, Cause: cause}
}

func (se *SerializationError) Error() string {
	return fmt.Sprintf("behave: failed to %s event type %q: %v", se.Operation, se.EventType, se.Cause)
}

func (se *SerializationError) Is(target error) bool { return target == ErrSerializationFailed }

func (se *SerializationError) Unwrap() error { return se.Cause }

// NoRouteError names the command type no runtime is registered for.
type NoRouteError struct {
	CommandType string
}

// NewNoRouteError builds a NoRouteError for the given command type.
func NewNoRouteError(cmdType string) *NoRouteError {
	return &NoRouteError{CommandType: cmdType}
}

func (nr *NoRouteError) Error() string {
	return fmt.Sprintf("behave: no runtime registered for command type %q", nr.CommandType)
}

func (nr *NoRouteError) Is(target error) bool { return target == ErrNoRoute }

func (nr *NoRouteError) Unwrap() error { return ErrNoRoute }

// KindAlreadyRegisteredError names the kind a duplicate router registration
// collided on.
type KindAlreadyRegisteredError struct {
	Kind string
}

// NewKindAlreadyRegisteredError builds a KindAlreadyRegisteredError.
func NewKindAlreadyRegisteredError(kind string) *KindAlreadyRegisteredError {
	return &KindAlreadyRegisteredError{Kind: kind}
}

func (kr *KindAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("behave: kind %q already registered", kr.Kind)
}

func (kr *KindAlreadyRegisteredError) Is(target error) bool { return target == ErrKindAlreadyRegistered }

func (kr *KindAlreadyRegisteredError) Unwrap() error { return ErrKindAlreadyRegistered }

// PanicError carries the recovered value and stack from a submit panic.
type PanicError struct {
	CommandType string
	Value       any
	Stack       string
}

// NewPanicError builds a PanicError from a recovered value and stack trace.
func NewPanicError(cmdType string, value any, stack string) *PanicError {
	return &PanicError{CommandType: cmdType, Value: value, Stack: stack}
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("behave: submit panicked while processing %q: %v", pe.CommandType, pe.Value)
}

func (pe *PanicError) Is(target error) bool { return target == ErrSubmitPanicked }

func (pe *PanicError) Unwrap() error { return ErrSubmitPanicked }

// ValidationError describes a command self-validation failure, optionally
// pinned to a single field.
type ValidationError struct {
	CommandType string // command that failed validation
	Field       string // offending field, empty for whole-command failures
	Message     string // human-readable reason
	Cause       error  // underlying error, may be nil
}

// NewValidationError builds a ValidationError for one field of a command.
func NewValidationError(cmdType, field, message string) *ValidationError {
	return &ValidationError{CommandType: cmdType, Field: field, Message: message}
}

func (ve *ValidationError) Error() string {
	if ve.Field != "" {
		return fmt.Sprintf("behave: validation failed for command %q field %q: %s",
			ve.CommandType, ve.Field, ve.Message)
	}
	return fmt.Sprintf("behave: validation failed for command %q: %s", ve.CommandType, ve.Message)
}

func (ve *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

func (ve *ValidationError) Unwrap() error { return ve.Cause }
