package memory

import "github.com/AshkanYarmoradi/go-behave/adapters"

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
