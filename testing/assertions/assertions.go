// Package assertions provides assertion helpers for decided event slices and
// command rejections. Event type names are resolved the same way the journal
// resolves them, so events that rename themselves through EventName() are
// asserted under their stored name.
package assertions

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/AshkanYarmoradi/go-behave"
)

// TB is the subset of testing.TB the helpers need. Declared as an alias so
// callers can pass *testing.T directly.
type TB = testing.TB

// AssertEventTypes checks that events carry exactly the given types, in order.
func AssertEventTypes(t TB, events []any, types ...string) {
	t.Helper()

	if len(events) != len(types) {
		t.Fatalf("want %d events, got %d", len(types), len(events))
	}
	for i, want := range types {
		if got := behave.EventName(events[i]); got != want {
			t.Errorf("event %d: got type %s, want %s", i, got, want)
		}
	}
}

// AssertEventOrder checks that the given types appear among the events in the
// given order. Other events may sit between them.
func AssertEventOrder(t TB, events []any, types ...string) {
	t.Helper()

	next := 0
	for _, ev := range events {
		if next < len(types) && behave.EventName(ev) == types[next] {
			next++
		}
	}
	if next < len(types) {
		t.Errorf("event order broken: %s not found after its predecessors", types[next])
	}
}

// AssertEventData checks that event is a T equal to expected.
func AssertEventData[T any](t TB, event any, expected T) {
	t.Helper()

	got, ok := event.(T)
	if !ok {
		t.Fatalf("got event type %T, want %T", event, expected)
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("event mismatch:\n got: %+v\nwant: %+v", got, expected)
	}
}

// AssertEventCount checks how many events were decided.
func AssertEventCount(t TB, events []any, want int) {
	t.Helper()

	if len(events) != want {
		t.Errorf("want %d events, got %d", want, len(events))
	}
}

// AssertNoEvents checks that the decision produced nothing.
func AssertNoEvents(t TB, events []any) {
	t.Helper()

	if len(events) > 0 {
		t.Errorf("want no events, got %d: %+v", len(events), events)
	}
}

// AssertEventAtIndex checks the event at index against expected.
func AssertEventAtIndex[T any](t TB, events []any, index int, expected T) {
	t.Helper()

	if index < 0 || index >= len(events) {
		t.Fatalf("index %d out of range for %d events", index, len(events))
	}
	AssertEventData(t, events[index], expected)
}

// AssertFirstEvent checks the first event against expected.
func AssertFirstEvent[T any](t TB, events []any, expected T) {
	t.Helper()

	if len(events) == 0 {
		t.Fatal("want at least one event, got none")
	}
	AssertEventAtIndex(t, events, 0, expected)
}

// AssertLastEvent checks the last event against expected.
func AssertLastEvent[T any](t TB, events []any, expected T) {
	t.Helper()

	if len(events) == 0 {
		t.Fatal("want at least one event, got none")
	}
	AssertEventAtIndex(t, events, len(events)-1, expected)
}

// AssertContainsEvent checks that some event is a T equal to expected.
func AssertContainsEvent[T any](t TB, events []any, expected T) {
	t.Helper()

	for _, ev := range events {
		if got, ok := ev.(T); ok && reflect.DeepEqual(got, expected) {
			return
		}
	}
	t.Errorf("no event equal to %+v", expected)
}

// AssertContainsEventType checks that at least one event has the given type.
func AssertContainsEventType(t TB, events []any, typeName string) {
	t.Helper()

	for _, ev := range events {
		if behave.EventName(ev) == typeName {
			return
		}
	}
	t.Errorf("no event of type %s", typeName)
}

// AssertRejected checks that err is a command rejection and returns it for
// further inspection.
func AssertRejected(t TB, err error) *behave.Rejection {
	t.Helper()

	if err == nil {
		t.Fatal("want a rejection, got nil error")
		return nil
	}
	rej, ok := behave.AsRejection(err)
	if !ok {
		t.Fatalf("want a rejection, got: %v", err)
		return nil
	}
	return rej
}

// AssertRejectedWithCode checks that err is a rejection with the given code.
func AssertRejectedWithCode(t TB, err error, code behave.RejectionCode) *behave.Rejection {
	t.Helper()

	rej := AssertRejected(t, err)
	if rej != nil && rej.Code != code {
		t.Errorf("got rejection code %s (reason %q), want %s", rej.Code, rej.Reason, code)
	}
	return rej
}

// AssertRejectionReason checks that err is a rejection whose reason contains
// the fragment.
func AssertRejectionReason(t TB, err error, fragment string) {
	t.Helper()

	rej := AssertRejected(t, err)
	if rej != nil && !strings.Contains(rej.Reason, fragment) {
		t.Errorf("rejection reason %q does not contain %q", rej.Reason, fragment)
	}
}

// AssertNotRejected checks that err is not a command rejection. A nil err
// passes; so does an infrastructure error.
func AssertNotRejected(t TB, err error) {
	t.Helper()

	if behave.IsRejection(err) {
		t.Errorf("want no rejection, got: %v", err)
	}
}

// EventDiff is one difference between an expected and an actual event slice.
type EventDiff struct {
	Index    int
	Expected any
	Actual   any
	Type     DiffType
}

// DiffType classifies an EventDiff.
type DiffType int

const (
	// DiffMissing marks an expected event the actual slice does not have.
	DiffMissing DiffType = iota
	// DiffExtra marks an actual event beyond the expected slice.
	DiffExtra
	// DiffMismatch marks events at the same index with different data.
	DiffMismatch
)

var diffTypeNames = [...]string{
	DiffMissing:  "missing",
	DiffExtra:    "extra",
	DiffMismatch: "mismatch",
}

func (d DiffType) String() string {
	if 0 <= d && int(d) < len(diffTypeNames) {
		return diffTypeNames[d]
	}
	return "unknown"
}

// DiffEvents compares two event slices index by index and returns every
// difference. Length differences show up as missing or extra entries.
func DiffEvents(expected, actual []any) []EventDiff {
	var out []EventDiff
	for i := 0; i < len(expected) || i < len(actual); i++ {
		switch {
		case i >= len(actual):
			out = append(out, EventDiff{Index: i, Expected: expected[i], Type: DiffMissing})
		case i >= len(expected):
			out = append(out, EventDiff{Index: i, Actual: actual[i], Type: DiffExtra})
		case !reflect.DeepEqual(expected[i], actual[i]):
			out = append(out, EventDiff{Index: i, Expected: expected[i], Actual: actual[i], Type: DiffMismatch})
		}
	}
	return out
}

// FormatDiffs renders diffs for a failure message.
func FormatDiffs(diffs []EventDiff) string {
	if len(diffs) == 0 {
		return "no differences"
	}

	var b strings.Builder
	b.WriteString("Event differences:\n")
	for _, d := range diffs {
		fmt.Fprintf(&b, "  Event %d (%s):\n", d.Index, d.Type)
		switch d.Type {
		case DiffExtra:
			fmt.Fprintf(&b, "    + %T %+v (unexpected)\n", d.Actual, d.Actual)
		case DiffMissing:
			fmt.Fprintf(&b, "    - %T %+v (missing)\n", d.Expected, d.Expected)
		case DiffMismatch:
			fmt.Fprintf(&b, "    - %T %+v\n", d.Expected, d.Expected)
			fmt.Fprintf(&b, "    + %T %+v\n", d.Actual, d.Actual)
		}
	}
	return b.String()
}

// AssertEventsEqual fails with a rendered diff when the slices differ.
func AssertEventsEqual(t TB, expected, actual []any) {
	t.Helper()

	if d := DiffEvents(expected, actual); len(d) > 0 {
		t.Error(FormatDiffs(d))
	}
}

// AssertEventsMatch checks that actual starts with the expected events.
// Events past the expected prefix are allowed.
func AssertEventsMatch(t TB, expected, actual []any) {
	t.Helper()

	if len(actual) < len(expected) {
		t.Fatalf("want at least %d events, got %d", len(expected), len(actual))
	}
	for i, want := range expected {
		if !reflect.DeepEqual(want, actual[i]) {
			t.Errorf("event %d mismatch:\n got: %+v\nwant: %+v", i, actual[i], want)
		}
	}
}

// EventMatcher reports whether an event meets some criterion.
type EventMatcher func(event any) bool

// MatchEventType matches events stored under the given type name.
func MatchEventType(name string) EventMatcher {
	return func(event any) bool {
		return behave.EventName(event) == name
	}
}

// MatchEvent matches events deep-equal to want.
func MatchEvent[T any](want T) EventMatcher {
	return func(event any) bool {
		got, ok := event.(T)
		return ok && reflect.DeepEqual(got, want)
	}
}

// AssertAnyMatch checks that at least one event satisfies the matcher.
func AssertAnyMatch(t TB, events []any, matcher EventMatcher) {
	t.Helper()

	for _, ev := range events {
		if matcher(ev) {
			return
		}
	}
	t.Error("no event matched")
}

// AssertAllMatch checks that every event satisfies the matcher.
func AssertAllMatch(t TB, events []any, matcher EventMatcher) {
	t.Helper()

	for i, ev := range events {
		if !matcher(ev) {
			t.Errorf("event %d did not match: %+v", i, ev)
		}
	}
}

// AssertNoneMatch checks that no event satisfies the matcher.
func AssertNoneMatch(t TB, events []any, matcher EventMatcher) {
	t.Helper()

	for i, ev := range events {
		if matcher(ev) {
			t.Errorf("event %d unexpectedly matched: %+v", i, ev)
		}
	}
}

// CountMatches returns how many events satisfy the matcher.
func CountMatches(events []any, matcher EventMatcher) int {
	n := 0
	for _, ev := range events {
		if matcher(ev) {
			n++
		}
	}
	return n
}

// FilterEvents returns the events that satisfy the matcher.
func FilterEvents(events []any, matcher EventMatcher) []any {
	var matched []any
	for _, ev := range events {
		if matcher(ev) {
			matched = append(matched, ev)
		}
	}
	return matched
}
