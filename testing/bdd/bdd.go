// Package bdd provides Given-When-Then test fixtures for behaviors.
//
// A Fixture drives a Behavior directly: Given replays history, When runs a
// command through the matching phase, and the Then methods assert on the
// decided events or the rejection.
//
//	bdd.NewFixture(t, behavior).
//		Given(OrderPlaced{OrderID: "o-1", CustomerID: "c-1"}).
//		When(ShipOrder{OrderID: "o-1"}).
//		ThenRejectedNaming("empty")
//
// A RuntimeFixture drives a full Runtime, journal included, for
// integration-style scenarios.
package bdd

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-behave"
)

// TB aliases testing.TB so fixtures accept *testing.T, *testing.B, or a
// test double.
type TB = testing.TB

// Fixture provides Given-When-Then testing for a single behavior.
type Fixture[A behave.Aggregate] struct {
	tb       TB
	ctx      context.Context
	behavior *behave.Behavior[A]
	history  []any
	events   []any
	err      error
	ran      bool
}

// NewFixture creates a fixture around a behavior.
func NewFixture[A behave.Aggregate](tb TB, behavior *behave.Behavior[A]) *Fixture[A] {
	tb.Helper()
	return &Fixture[A]{
		tb:       tb,
		ctx:      context.Background(),
		behavior: behavior,
	}
}

// WithContext sets a custom context for command execution.
func (fx *Fixture[A]) WithContext(ctx context.Context) *Fixture[A] {
	fx.ctx = ctx
	return fx
}

// Given establishes the aggregate's history. An empty Given (or none at all)
// means the aggregate does not exist yet, so When runs the creation phase.
func (fx *Fixture[A]) Given(history ...any) *Fixture[A] {
	fx.history = append(fx.history, history...)
	return fx
}

// When runs the command through the phase the history selects: creation when
// no history was given, update otherwise.
func (fx *Fixture[A]) When(cmd any) *Fixture[A] {
	fx.tb.Helper()

	if len(fx.history) == 0 {
		event, err := fx.behavior.ValidateCreation(fx.ctx, cmd)
		fx.err = err
		if err == nil {
			fx.events = []any{event}
		}
	} else {
		agg, err := fx.behavior.Replay(fx.history...)
		if err != nil {
			fx.tb.Fatalf("Failed to replay given history: %v", err)
		}
		fx.events, fx.err = fx.behavior.ValidateUpdate(fx.ctx, cmd, agg)
	}

	fx.ran = true
	return fx
}

// ThenEvents asserts the command decided exactly the expected events.
func (fx *Fixture[A]) ThenEvents(expected ...any) {
	fx.tb.Helper()
	fx.requireExecuted("ThenEvents")

	if fx.err != nil {
		fx.tb.Fatalf("Expected events but got error: %v", fx.err)
	}

	if len(fx.events) != len(expected) {
		fx.tb.Fatalf("Expected %d events, got %d.\nExpected: %+v\nActual: %+v",
			len(expected), len(fx.events), expected, fx.events)
	}

	for i, want := range expected {
		if !reflect.DeepEqual(fx.events[i], want) {
			fx.tb.Errorf("Event %d mismatch:\nExpected: %+v\nActual: %+v",
				i, want, fx.events[i])
		}
	}
}

// ThenNoEvents asserts the command decided no events.
func (fx *Fixture[A]) ThenNoEvents() {
	fx.tb.Helper()
	fx.requireExecuted("ThenNoEvents")

	if len(fx.events) > 0 {
		fx.tb.Errorf("Expected no events, got %d: %+v", len(fx.events), fx.events)
	}
}

// ThenError asserts the command failed with the expected error.
func (fx *Fixture[A]) ThenError(expected error) {
	fx.tb.Helper()
	fx.requireExecuted("ThenError")

	if fx.err == nil {
		fx.tb.Fatal("Expected error but got success")
	}

	if !errors.Is(fx.err, expected) {
		fx.tb.Errorf("Expected error %v, got %v", expected, fx.err)
	}
}

// ThenRejected asserts the command was rejected with the expected code.
func (fx *Fixture[A]) ThenRejected(code behave.RejectionCode) *Fixture[A] {
	fx.tb.Helper()
	fx.requireExecuted("ThenRejected")

	rej := fx.requireRejection()
	if rej != nil && rej.Code != code {
		fx.tb.Errorf("Expected rejection code %s, got %s (reason: %s)",
			code, rej.Code, rej.Reason)
	}
	return fx
}

// ThenRejectedNaming asserts the command was rejected and the rejection
// message mentions the fragment (a command name, aggregate id, or reason).
func (fx *Fixture[A]) ThenRejectedNaming(fragment string) *Fixture[A] {
	fx.tb.Helper()
	fx.requireExecuted("ThenRejectedNaming")

	rej := fx.requireRejection()
	if rej != nil && !strings.Contains(rej.Error(), fragment) {
		fx.tb.Errorf("Expected rejection naming %q, got %q", fragment, rej.Error())
	}
	return fx
}

// ThenState folds the decided events on top of the given history and hands
// the resulting aggregate to the assertion.
func (fx *Fixture[A]) ThenState(assert func(t TB, agg A)) {
	fx.tb.Helper()
	fx.requireExecuted("ThenState")

	if fx.err != nil {
		fx.tb.Fatalf("Expected events but got error: %v", fx.err)
	}

	full := make([]any, 0, len(fx.history)+len(fx.events))
	full = append(full, fx.history...)
	full = append(full, fx.events...)

	agg, err := fx.behavior.Replay(full...)
	if err != nil {
		fx.tb.Fatalf("Failed to fold decided events: %v", err)
	}

	assert(fx.tb, agg)
}

func (fx *Fixture[A]) requireExecuted(method string) {
	fx.tb.Helper()
	if !fx.ran {
		fx.tb.Fatalf("bdd: %s() must be called after When() - no command was executed", method)
	}
}

func (fx *Fixture[A]) requireRejection() *behave.Rejection {
	fx.tb.Helper()
	if fx.err == nil {
		fx.tb.Fatal("Expected rejection but got success")
		return nil
	}
	rej, ok := behave.AsRejection(fx.err)
	if !ok {
		fx.tb.Fatalf("Expected rejection, got %v", fx.err)
		return nil
	}
	return rej
}

// RuntimeFixture provides Given-When-Then testing against a full runtime,
// journal included.
type RuntimeFixture[A behave.Aggregate] struct {
	tb          TB
	ctx         context.Context
	runtime     *behave.Runtime[A]
	res         behave.SubmitResult
	err         error
	aggregateID string
	ran         bool
}

// GivenRuntime creates a fixture around a runtime.
func GivenRuntime[A behave.Aggregate](tb TB, rt *behave.Runtime[A]) *RuntimeFixture[A] {
	tb.Helper()
	return &RuntimeFixture[A]{
		tb:      tb,
		ctx:     context.Background(),
		runtime: rt,
	}
}

// WithContext sets a custom context for the submit.
func (fx *RuntimeFixture[A]) WithContext(ctx context.Context) *RuntimeFixture[A] {
	fx.ctx = ctx
	return fx
}

// WithHistory seeds the aggregate's stream before the submit.
func (fx *RuntimeFixture[A]) WithHistory(aggregateID string, history ...any) *RuntimeFixture[A] {
	fx.tb.Helper()

	streamID := behave.BuildStreamID(fx.runtime.Kind(), aggregateID)
	if err := fx.runtime.Journal().Append(fx.ctx, streamID, history); err != nil {
		fx.tb.Fatalf("Failed to seed history: %v", err)
	}
	return fx
}

// When submits the command.
func (fx *RuntimeFixture[A]) When(aggregateID string, cmd any) *RuntimeFixture[A] {
	fx.tb.Helper()

	fx.aggregateID = aggregateID
	fx.res, fx.err = fx.runtime.Submit(fx.ctx, aggregateID, cmd)
	fx.ran = true
	return fx
}

// ThenSucceeds asserts the submit succeeded.
func (fx *RuntimeFixture[A]) ThenSucceeds() *RuntimeFixture[A] {
	fx.tb.Helper()
	fx.requireExecuted("ThenSucceeds")

	if fx.err != nil {
		fx.tb.Fatalf("Expected success but got error: %v", fx.err)
	}
	return fx
}

// ThenFails asserts the submit failed with the expected error.
func (fx *RuntimeFixture[A]) ThenFails(expected error) {
	fx.tb.Helper()
	fx.requireExecuted("ThenFails")

	if fx.err == nil {
		fx.tb.Fatal("Expected failure but got success")
	}

	if !errors.Is(fx.err, expected) {
		fx.tb.Errorf("Expected error %v, got %v", expected, fx.err)
	}
}

// ThenRejected asserts the submit was rejected with the expected code.
func (fx *RuntimeFixture[A]) ThenRejected(code behave.RejectionCode) *RuntimeFixture[A] {
	fx.tb.Helper()
	fx.requireExecuted("ThenRejected")

	if fx.err == nil {
		fx.tb.Fatal("Expected rejection but got success")
		return fx
	}

	rej, ok := behave.AsRejection(fx.err)
	if !ok {
		fx.tb.Fatalf("Expected rejection, got %v", fx.err)
		return fx
	}
	if rej.Code != code {
		fx.tb.Errorf("Expected rejection code %s, got %s (reason: %s)",
			code, rej.Code, rej.Reason)
	}
	return fx
}

// ThenVersion asserts the stream version after the submit.
func (fx *RuntimeFixture[A]) ThenVersion(expected int64) *RuntimeFixture[A] {
	fx.tb.Helper()
	fx.requireExecuted("ThenVersion")

	if fx.res.Version != expected {
		fx.tb.Errorf("Expected version %d, got %d", expected, fx.res.Version)
	}
	return fx
}

// ThenCreated asserts whether the submit created the aggregate.
func (fx *RuntimeFixture[A]) ThenCreated(expected bool) *RuntimeFixture[A] {
	fx.tb.Helper()
	fx.requireExecuted("ThenCreated")

	if fx.res.Created != expected {
		fx.tb.Errorf("Expected created=%t, got created=%t", expected, fx.res.Created)
	}
	return fx
}

// ThenState loads the aggregate after the submit and hands it to the
// assertion.
func (fx *RuntimeFixture[A]) ThenState(assert func(t TB, agg A)) {
	fx.tb.Helper()
	fx.requireExecuted("ThenState")

	if fx.err != nil {
		fx.tb.Fatalf("Expected success but got error: %v", fx.err)
	}

	agg, _, err := fx.runtime.State(fx.ctx, fx.aggregateID)
	if err != nil {
		fx.tb.Fatalf("Failed to load state: %v", err)
	}

	assert(fx.tb, agg)
}

func (fx *RuntimeFixture[A]) requireExecuted(method string) {
	fx.tb.Helper()
	if !fx.ran {
		fx.tb.Fatalf("bdd: %s() must be called after When() - no command was submitted", method)
	}
}
