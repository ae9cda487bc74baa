package behave

import (
	"context"
	"fmt"
)

// Outcome is the normalized result of a command-handling action. Actions may
// produce their events in several equivalent shapes; all converge here:
//
//	behave.Emit(event)                      // immediate single event
//	behave.Emit(e1, e2, e3)                 // immediate sequence (update side)
//	behave.Reject("reason %d", code)        // immediate domain rejection
//	behave.Fail(err)                        // immediate failure
//	behave.Defer(func(ctx) (any, error))    // deferred single event
//	behave.DeferAll(func(ctx) ([]any, error)) // deferred sequence
//
// Deferred outcomes receive the caller's context when the validate operation
// resolves them, so an action may await an external check before producing
// its events. Outcome values are immutable.
type Outcome struct {
	events   []any
	err      error
	deferred func(ctx context.Context) ([]any, error)
}

// Emit creates an outcome carrying the given events.
// Creation rules must emit exactly one event; update rules at least one.
func Emit(events ...any) Outcome {
	return Outcome{events: events}
}

// Fail creates an outcome carrying an immediate failure.
// The error surfaces to the caller as a Rejection.
func Fail(err error) Outcome {
	if err == nil {
		err = NewRejection(RejectionPrecondition, "action failed without an error")
	}
	return Outcome{err: err}
}

// Reject creates an outcome carrying an immediate domain-precondition rejection.
func Reject(format string, args ...any) Outcome {
	return Outcome{err: NewRejection(RejectionPrecondition, fmt.Sprintf(format, args...))}
}

// Defer creates an outcome that resolves to a single event later.
// The function runs when the validate operation resolves, with the caller's
// context; returning an error yields a rejection carrying it.
func Defer(fn func(ctx context.Context) (any, error)) Outcome {
	return Outcome{deferred: func(ctx context.Context) ([]any, error) {
		event, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return []any{event}, nil
	}}
}

// DeferAll creates an outcome that resolves to an event sequence later.
func DeferAll(fn func(ctx context.Context) ([]any, error)) Outcome {
	return Outcome{deferred: fn}
}

// resolve produces the outcome's events, running any deferred computation
// with ctx. Errors are returned as-is; callers normalize them to rejections.
func (o Outcome) resolve(ctx context.Context) ([]any, error) {
	switch {
	case o.err != nil:
		return nil, o.err
	case o.deferred != nil:
		return o.deferred(ctx)
	case o.events != nil:
		return o.events, nil
	default:
		// A zero Outcome means the action forgot to produce anything.
		return nil, NewRejection(RejectionInvalidOutcome, "action produced no outcome")
	}
}
