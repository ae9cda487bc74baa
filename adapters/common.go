// Package adapters defines the storage interfaces journal backends implement
// and the helpers they share.
package adapters

import (
	"fmt"
	"strings"
)

// Sentinel expected-version values for Append. Any other negative value is
// rejected with ErrInvalidVersion.
const (
	// AnyVersion disables the optimistic concurrency check.
	AnyVersion int64 = -1

	// NoStream asserts the stream does not exist yet.
	NoStream int64 = 0

	// StreamExists asserts the stream already has events.
	StreamExists int64 = -2
)

// ExtractKind returns the aggregate kind encoded in a stream ID, which is
// everything before the first hyphen. "Product-123" yields "Product"; an ID
// without a hyphen is returned whole.
func ExtractKind(streamID string) string {
	if i := strings.IndexByte(streamID, '-'); i >= 0 {
		return streamID[:i]
	}
	return streamID
}

// ConcurrencyError reports a failed optimistic concurrency check on Append.
type ConcurrencyError struct {
	ExpectedVersion int64
	ActualVersion   int64
	StreamID        string
}

// NewConcurrencyError builds a ConcurrencyError for the given stream.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{ExpectedVersion: expected, ActualVersion: actual, StreamID: streamID}
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("behave: concurrency conflict on stream %q: expected version %d, got %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is matches ErrConcurrencyConflict so callers can test with errors.Is.
func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrencyConflict }

// StreamNotFoundError reports an operation against a stream that has no
// events.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError builds a StreamNotFoundError for the given stream.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("behave: stream %q not found", e.StreamID)
}

// Is matches ErrStreamNotFound so callers can test with errors.Is.
func (e *StreamNotFoundError) Is(target error) bool { return target == ErrStreamNotFound }

// CheckVersion applies the optimistic concurrency rules shared by every
// adapter. expected is a sentinel or a concrete version; current and exists
// describe the stream as stored. A nil return means the append may proceed.
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	if expected == AnyVersion {
		return nil
	}
	if expected == NoStream {
		if exists {
			return NewConcurrencyError(streamID, expected, current)
		}
		return nil
	}
	if expected == StreamExists {
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	}

	// Sentinels are handled above; any other negative value is malformed.
	if expected < 0 {
		return ErrInvalidVersion
	}
	if current != expected {
		return NewConcurrencyError(streamID, expected, current)
	}
	return nil
}

// CopyIdempotencyRecord returns a copy of record so stored state cannot be
// mutated through the original. The Response slice is shared, not cloned.
// Nil in, nil out.
func CopyIdempotencyRecord(record *IdempotencyRecord) *IdempotencyRecord {
	if record == nil {
		return nil
	}
	c := *record
	return &c
}

// DefaultLimit substitutes defaultValue when limit is zero or negative.
func DefaultLimit(limit, defaultValue int) int {
	if limit > 0 {
		return limit
	}
	return defaultValue
}
