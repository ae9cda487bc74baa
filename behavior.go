package behave

import (
	"context"
	"errors"
	"fmt"
)

// Behavior is the compiled decision surface for one aggregate kind. It holds
// the creation and update rule sets assembled by the builder and exposes the
// validate and apply operations a runtime drives. A Behavior is immutable and
// safe for concurrent use. Apply operations are pure and synchronous; the
// validate operations are pure except for resolving deferred outcomes, which
// runs the action's own function with the caller's context.
type Behavior[A Aggregate] struct {
	kind     string
	creation CreationRules[A]
	update   UpdateRules[A]
}

func newBehavior[A Aggregate](kind string, creation CreationRules[A], update UpdateRules[A]) *Behavior[A] {
	return &Behavior[A]{kind: kind, creation: creation, update: update}
}

// Kind returns the aggregate kind this behavior governs.
func (b *Behavior[A]) Kind() string { return b.kind }

// ValidateCreation decides a command against a not-yet-existing aggregate.
// Creation command rules are tried in registration order and the first match
// wins. On success the matched action must yield exactly one event; any other
// count, an action failure, or an unmatched command returns a *Rejection, so
// errors.Is(err, ErrCommandRejected) reports true for every failure mode and
// action causes stay reachable through errors.Unwrap.
func (b *Behavior[A]) ValidateCreation(ctx context.Context, cmd any) (any, error) {
	if cmd == nil {
		return nil, NewPreconditionRejection(cmd, ErrNilCommand)
	}
	for _, rule := range b.creation.commands {
		if !rule.matches(cmd) {
			continue
		}
		events, err := rule.action(ctx, cmd).resolve(ctx)
		if err != nil {
			return nil, b.rejectionFor(cmd, "", err)
		}
		if len(events) != 1 {
			reason := fmt.Sprintf("creation action for %s produced %d events, want exactly 1", CommandName(cmd), len(events))
			return nil, b.invalidOutcome(cmd, "", reason)
		}
		return events[0], nil
	}
	return nil, NewCreationRejection(cmd)
}

// ValidateUpdate decides a command against an existing aggregate. Update
// command rules are tried in registration order over the (command, state)
// pair and the first match wins. On success the matched action must yield at
// least one event, returned in emission order. Failures follow the same
// *Rejection discipline as ValidateCreation, with the aggregate id attached.
func (b *Behavior[A]) ValidateUpdate(ctx context.Context, cmd any, agg A) ([]any, error) {
	if cmd == nil {
		return nil, NewPreconditionRejection(cmd, ErrNilCommand)
	}
	id := agg.AggregateID()
	for _, rule := range b.update.commands {
		if !rule.matches(cmd, agg) {
			continue
		}
		events, err := rule.action(ctx, cmd, agg).resolve(ctx)
		if err != nil {
			return nil, b.rejectionFor(cmd, id, err)
		}
		if len(events) == 0 {
			reason := fmt.Sprintf("update action for %s produced no events", CommandName(cmd))
			return nil, b.invalidOutcome(cmd, id, reason)
		}
		return events, nil
	}
	return nil, NewUpdateRejection(cmd, id)
}

// ApplyCreation folds the first event of a stream into the aggregate's
// initial state. An event no creation fold matches is fatal: the stream
// cannot be seeded from it, so the zero state and an *UndefinedFoldError
// come back rather than a silent skip.
func (b *Behavior[A]) ApplyCreation(event any) (A, error) {
	var zero A
	if event == nil {
		return zero, ErrNilEvent
	}
	for _, rule := range b.creation.events {
		if rule.matches(event) {
			return rule.fold(event), nil
		}
	}
	return zero, NewUndefinedFoldError(b.kind, EventName(event))
}

// ApplyUpdate folds one subsequent event into the current state. An event no
// update fold matches is deliberately a no-op returning agg unchanged, unlike
// the creation side: streams routinely carry event types a newer model has
// retired, and replays must keep walking past them.
func (b *Behavior[A]) ApplyUpdate(agg A, event any) A {
	if event == nil {
		return agg
	}
	for _, rule := range b.update.events {
		if rule.matches(agg, event) {
			return rule.fold(agg, event)
		}
	}
	return agg
}

// IsCreationEventDefined reports whether some creation fold matches event.
// Replay tooling uses it to tell a seedable event from one that would fail
// ApplyCreation.
func (b *Behavior[A]) IsCreationEventDefined(event any) bool {
	if event == nil {
		return false
	}
	for _, rule := range b.creation.events {
		if rule.matches(event) {
			return true
		}
	}
	return false
}

// IsUpdateEventDefined reports whether some update fold matches the
// (state, event) pair, distinguishing an intentional no-op from an event the
// model simply never saw.
func (b *Behavior[A]) IsUpdateEventDefined(agg A, event any) bool {
	if event == nil {
		return false
	}
	for _, rule := range b.update.events {
		if rule.matches(agg, event) {
			return true
		}
	}
	return false
}

// Replay rebuilds the aggregate from its full history: the first event seeds
// the state through ApplyCreation and every later event folds through
// ApplyUpdate, in order. Replay is deterministic; the same history always
// yields the same state. An empty history returns ErrEmptyHistory.
func (b *Behavior[A]) Replay(history ...any) (A, error) {
	var zero A
	if len(history) == 0 {
		return zero, ErrEmptyHistory
	}
	agg, err := b.ApplyCreation(history[0])
	if err != nil {
		return zero, err
	}
	for _, event := range history[1:] {
		agg = b.ApplyUpdate(agg, event)
	}
	return agg, nil
}

// CreationResult carries the outcome of an asynchronous creation validation.
type CreationResult struct {
	Event any
	Err   error
}

// UpdateResult carries the outcome of an asynchronous update validation.
type UpdateResult struct {
	Events []any
	Err    error
}

// ValidateCreationAsync runs ValidateCreation in a goroutine and returns a
// buffered channel that receives the single result and is then closed.
func (b *Behavior[A]) ValidateCreationAsync(ctx context.Context, cmd any) <-chan CreationResult {
	out := make(chan CreationResult, 1)
	go func() {
		defer close(out)
		event, err := b.ValidateCreation(ctx, cmd)
		out <- CreationResult{Event: event, Err: err}
	}()
	return out
}

// ValidateUpdateAsync runs ValidateUpdate in a goroutine and returns a
// buffered channel that receives the single result and is then closed.
func (b *Behavior[A]) ValidateUpdateAsync(ctx context.Context, cmd any, agg A) <-chan UpdateResult {
	out := make(chan UpdateResult, 1)
	go func() {
		defer close(out)
		events, err := b.ValidateUpdate(ctx, cmd, agg)
		out <- UpdateResult{Events: events, Err: err}
	}()
	return out
}

// rejectionFor normalizes an action error into a *Rejection carrying the
// command name and aggregate id, passing an action's own rejection through.
func (b *Behavior[A]) rejectionFor(cmd any, aggregateID string, err error) *Rejection {
	var rej *Rejection
	if errors.As(err, &rej) {
		if rej.Command == "" {
			rej.Command = CommandName(cmd)
		}
		if rej.AggregateID == "" {
			rej.AggregateID = aggregateID
		}
		return rej
	}
	rej = NewPreconditionRejection(cmd, err)
	rej.AggregateID = aggregateID
	return rej
}

func (b *Behavior[A]) invalidOutcome(cmd any, aggregateID, reason string) *Rejection {
	rej := NewRejection(RejectionInvalidOutcome, reason)
	rej.Command = CommandName(cmd)
	rej.AggregateID = aggregateID
	return rej
}
