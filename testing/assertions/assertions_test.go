package assertions

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/AshkanYarmoradi/go-behave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ProductRegistered struct {
	ProductID string
	Name      string
}

type ProductPriced struct {
	ProductID string
	Price     float64
}

type ProductArchived struct {
	ProductID string
}

// ProductImported renames itself in streams, so assertions must see the
// stored name rather than the struct name.
type ProductImported struct {
	ProductID string
}

func (ProductImported) EventName() string { return "product.imported.v2" }

// history is the standard three-event fixture used across these tests.
func history() []any {
	return []any{
		ProductRegistered{ProductID: "p-1", Name: "Widget"},
		ProductPriced{ProductID: "p-1", Price: 10},
		ProductArchived{ProductID: "p-1"},
	}
}

// recordingT captures failures so the assertion helpers themselves can be
// put under test.
type recordingT struct {
	testing.TB
	didFail  bool
	didFatal bool
	msg      string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...any) {
	r.didFail = true
	r.msg = fmt.Sprintf(format, args...)
}

func (r *recordingT) Error(args ...any) {
	r.didFail = true
	r.msg = fmt.Sprint(args...)
}

func (r *recordingT) Fatalf(format string, args ...any) {
	r.didFail = true
	r.didFatal = true
	r.msg = fmt.Sprintf(format, args...)
	runtime.Goexit()
}

func (r *recordingT) Fatal(args ...any) {
	r.didFail = true
	r.didFatal = true
	r.msg = fmt.Sprint(args...)
	runtime.Goexit()
}

// capture runs fn against a fresh recordingT on its own goroutine so Fatal
// stops it the way the testing package would.
func capture(fn func(tb TB)) *recordingT {
	rec := &recordingT{}
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		fn(rec)
	}()
	<-finished
	return rec
}

func TestAssertEventTypes(t *testing.T) {
	t.Run("passes on matching types in order", func(t *testing.T) {
		AssertEventTypes(t, history(), "ProductRegistered", "ProductPriced", "ProductArchived")
	})

	t.Run("resolves custom event names", func(t *testing.T) {
		AssertEventTypes(t, []any{ProductImported{ProductID: "p-1"}}, "product.imported.v2")
	})

	t.Run("empty against empty passes", func(t *testing.T) {
		AssertEventTypes(t, []any{})
	})

	t.Run("count mismatch is fatal", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertEventTypes(tb, history()[:1], "ProductRegistered", "ProductPriced")
		})
		assert.True(t, rec.didFatal)
		assert.Contains(t, rec.msg, "want 2 events, got 1")
	})

	t.Run("type mismatch fails", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertEventTypes(tb, history()[:1], "ProductPriced")
		})
		assert.True(t, rec.didFail)
		assert.False(t, rec.didFatal)
		assert.Contains(t, rec.msg, "want ProductPriced")
	})
}

func TestAssertEventOrder(t *testing.T) {
	t.Run("passes on the full sequence", func(t *testing.T) {
		AssertEventOrder(t, history(), "ProductRegistered", "ProductPriced", "ProductArchived")
	})

	t.Run("allows gaps between named types", func(t *testing.T) {
		AssertEventOrder(t, history(), "ProductRegistered", "ProductArchived")
	})

	t.Run("fails when the order is inverted", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertEventOrder(tb, history(), "ProductArchived", "ProductRegistered")
		})
		assert.True(t, rec.didFail)
		assert.Contains(t, rec.msg, "order broken")
	})

	t.Run("fails when a type never appears", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertEventOrder(tb, history(), "ProductRegistered", "ProductRenamed")
		})
		assert.True(t, rec.didFail)
	})
}

func TestAssertEventData(t *testing.T) {
	t.Run("passes on equal data", func(t *testing.T) {
		AssertEventData(t, history()[0], ProductRegistered{ProductID: "p-1", Name: "Widget"})
	})

	t.Run("wrong type is fatal", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertEventData(tb, history()[0], ProductPriced{ProductID: "p-1"})
		})
		assert.True(t, rec.didFatal)
		assert.Contains(t, rec.msg, "ProductPriced")
	})

	t.Run("different data fails", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertEventData(tb, history()[0], ProductRegistered{ProductID: "p-1", Name: "Gadget"})
		})
		assert.True(t, rec.didFail)
		assert.False(t, rec.didFatal)
	})
}

func TestAssertEventCount(t *testing.T) {
	AssertEventCount(t, history(), 3)
	AssertEventCount(t, []any{}, 0)

	rec := capture(func(tb TB) {
		AssertEventCount(tb, history(), 2)
	})
	assert.True(t, rec.didFail)
	assert.Contains(t, rec.msg, "want 2 events, got 3")
}

func TestAssertNoEvents(t *testing.T) {
	AssertNoEvents(t, []any{})
	AssertNoEvents(t, nil)

	rec := capture(func(tb TB) {
		AssertNoEvents(tb, history())
	})
	assert.True(t, rec.didFail)
	assert.Contains(t, rec.msg, "want no events")
}

func TestPositionalAssertions(t *testing.T) {
	t.Run("first event", func(t *testing.T) {
		AssertFirstEvent(t, history(), ProductRegistered{ProductID: "p-1", Name: "Widget"})
	})

	t.Run("last event", func(t *testing.T) {
		AssertLastEvent(t, history(), ProductArchived{ProductID: "p-1"})
		AssertLastEvent(t, history()[:1], ProductRegistered{ProductID: "p-1", Name: "Widget"})
	})

	t.Run("event at index", func(t *testing.T) {
		AssertEventAtIndex(t, history(), 1, ProductPriced{ProductID: "p-1", Price: 10})
	})

	t.Run("first and last are fatal on empty slices", func(t *testing.T) {
		for name, fn := range map[string]func(tb TB){
			"first": func(tb TB) { AssertFirstEvent(tb, []any{}, ProductRegistered{}) },
			"last":  func(tb TB) { AssertLastEvent(tb, []any{}, ProductRegistered{}) },
		} {
			rec := capture(fn)
			assert.True(t, rec.didFatal, name)
			assert.Contains(t, rec.msg, "at least one event", name)
		}
	})

	t.Run("index out of range is fatal", func(t *testing.T) {
		for _, index := range []int{-1, 5} {
			rec := capture(func(tb TB) {
				AssertEventAtIndex(tb, history(), index, ProductRegistered{})
			})
			assert.True(t, rec.didFatal, "index %d", index)
			assert.Contains(t, rec.msg, "out of range")
		}
	})

	t.Run("mismatch at position fails", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertFirstEvent(tb, history(), ProductRegistered{ProductID: "p-2"})
		})
		assert.True(t, rec.didFail)
	})
}

func TestAssertContainsEvent(t *testing.T) {
	t.Run("finds an equal event anywhere", func(t *testing.T) {
		AssertContainsEvent(t, history(), ProductPriced{ProductID: "p-1", Price: 10})
	})

	t.Run("fails when absent", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertContainsEvent(tb, history(), ProductPriced{ProductID: "p-2"})
		})
		assert.True(t, rec.didFail)
		assert.Contains(t, rec.msg, "no event equal to")
	})

	t.Run("type alone is not enough", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertContainsEvent(tb, history(), ProductRegistered{ProductID: "p-1", Name: "Gadget"})
		})
		assert.True(t, rec.didFail)
	})
}

func TestAssertContainsEventType(t *testing.T) {
	t.Run("finds a type anywhere", func(t *testing.T) {
		AssertContainsEventType(t, history(), "ProductPriced")
	})

	t.Run("matches custom event names", func(t *testing.T) {
		AssertContainsEventType(t, []any{ProductImported{ProductID: "p-1"}}, "product.imported.v2")
	})

	t.Run("fails when absent", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertContainsEventType(tb, history()[:1], "ProductArchived")
		})
		assert.True(t, rec.didFail)
		assert.Contains(t, rec.msg, "no event of type ProductArchived")
	})
}

func TestAssertRejected(t *testing.T) {
	t.Run("returns the rejection", func(t *testing.T) {
		err := behave.NewRejection(behave.RejectionPrecondition, "price must be positive")

		rej := AssertRejected(t, err)
		require.NotNil(t, rej)
		assert.Equal(t, "price must be positive", rej.Reason)
	})

	t.Run("unwraps a wrapped rejection", func(t *testing.T) {
		err := fmt.Errorf("submit failed: %w",
			behave.NewRejection(behave.RejectionPrecondition, "price must be positive"))

		rej := AssertRejected(t, err)
		require.NotNil(t, rej)
		assert.Equal(t, behave.RejectionPrecondition, rej.Code)
	})

	t.Run("nil error is fatal", func(t *testing.T) {
		rec := capture(func(tb TB) { AssertRejected(tb, nil) })
		assert.True(t, rec.didFatal)
		assert.Contains(t, rec.msg, "got nil error")
	})

	t.Run("infrastructure error is fatal", func(t *testing.T) {
		rec := capture(func(tb TB) { AssertRejected(tb, fmt.Errorf("connection refused")) })
		assert.True(t, rec.didFatal)
		assert.Contains(t, rec.msg, "connection refused")
	})
}

func TestAssertRejectedWithCode(t *testing.T) {
	t.Run("passes when the code matches", func(t *testing.T) {
		err := behave.NewCreationRejection(struct{ ID string }{ID: "p-1"})
		AssertRejectedWithCode(t, err, behave.RejectionUnmatchedCreation)
	})

	t.Run("fails without being fatal when the code differs", func(t *testing.T) {
		rec := capture(func(tb TB) {
			err := behave.NewRejection(behave.RejectionPrecondition, "nope")
			AssertRejectedWithCode(tb, err, behave.RejectionUnmatchedUpdate)
		})
		assert.True(t, rec.didFail)
		assert.False(t, rec.didFatal)
		assert.Contains(t, rec.msg, "rejection code")
	})
}

func TestAssertRejectionReason(t *testing.T) {
	t.Run("matches a fragment", func(t *testing.T) {
		err := behave.NewRejection(behave.RejectionPrecondition, "price must be positive, got -5")
		AssertRejectionReason(t, err, "must be positive")
	})

	t.Run("fails when the fragment is absent", func(t *testing.T) {
		rec := capture(func(tb TB) {
			err := behave.NewRejection(behave.RejectionPrecondition, "out of stock")
			AssertRejectionReason(tb, err, "must be positive")
		})
		assert.True(t, rec.didFail)
		assert.Contains(t, rec.msg, "does not contain")
	})
}

func TestAssertNotRejected(t *testing.T) {
	AssertNotRejected(t, nil)
	AssertNotRejected(t, fmt.Errorf("connection refused"))

	rec := capture(func(tb TB) {
		AssertNotRejected(tb, behave.NewRejection(behave.RejectionPrecondition, "nope"))
	})
	assert.True(t, rec.didFail)
}

func TestDiffEvents(t *testing.T) {
	t.Run("identical slices have no diff", func(t *testing.T) {
		assert.Empty(t, DiffEvents(history(), history()))
	})

	t.Run("shorter actual reports missing entries", func(t *testing.T) {
		got := DiffEvents(history(), history()[:1])

		require.Len(t, got, 2)
		assert.Equal(t, DiffMissing, got[0].Type)
		assert.Equal(t, 1, got[0].Index)
		assert.Equal(t, DiffMissing, got[1].Type)
	})

	t.Run("longer actual reports extra entries", func(t *testing.T) {
		got := DiffEvents(history()[:2], history())

		require.Len(t, got, 1)
		assert.Equal(t, DiffExtra, got[0].Type)
		assert.Equal(t, 2, got[0].Index)
	})

	t.Run("same index, different data is a mismatch", func(t *testing.T) {
		want := []any{ProductRegistered{ProductID: "p-1", Name: "Widget"}}
		have := []any{ProductRegistered{ProductID: "p-1", Name: "Gadget"}}

		got := DiffEvents(want, have)

		require.Len(t, got, 1)
		assert.Equal(t, DiffMismatch, got[0].Type)
	})

	t.Run("collects every difference", func(t *testing.T) {
		want := []any{
			ProductRegistered{ProductID: "p-1"},
			ProductPriced{ProductID: "p-1", Price: 10},
		}
		have := []any{
			ProductRegistered{ProductID: "p-2"},
			ProductPriced{ProductID: "p-1", Price: 20},
		}

		assert.Len(t, DiffEvents(want, have), 2)
	})
}

func TestDiffType_String(t *testing.T) {
	names := map[DiffType]string{
		DiffMissing:  "missing",
		DiffExtra:    "extra",
		DiffMismatch: "mismatch",
		DiffType(99): "unknown",
		DiffType(-1): "unknown",
	}
	for diffType, want := range names {
		assert.Equal(t, want, diffType.String())
	}
}

func TestFormatDiffs(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "no differences", FormatDiffs(nil))
	})

	t.Run("renders each diff kind", func(t *testing.T) {
		cases := map[string]struct {
			diff EventDiff
			want []string
		}{
			"missing": {
				EventDiff{Index: 0, Expected: ProductRegistered{ProductID: "p-1"}, Type: DiffMissing},
				[]string{"missing", "ProductRegistered"},
			},
			"extra": {
				EventDiff{Index: 0, Actual: ProductPriced{ProductID: "p-1"}, Type: DiffExtra},
				[]string{"extra", "unexpected"},
			},
			"mismatch": {
				EventDiff{
					Index:    0,
					Expected: ProductRegistered{ProductID: "p-1"},
					Actual:   ProductRegistered{ProductID: "p-2"},
					Type:     DiffMismatch,
				},
				[]string{"mismatch", "p-1", "p-2"},
			},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				rendered := FormatDiffs([]EventDiff{tc.diff})
				for _, fragment := range tc.want {
					assert.Contains(t, rendered, fragment)
				}
			})
		}
	})
}

func TestAssertEventsEqual(t *testing.T) {
	AssertEventsEqual(t, history(), history())

	rec := capture(func(tb TB) {
		AssertEventsEqual(tb,
			[]any{ProductRegistered{ProductID: "p-1"}},
			[]any{ProductRegistered{ProductID: "p-2"}})
	})
	assert.True(t, rec.didFail)
	assert.Contains(t, rec.msg, "Event differences")
}

func TestAssertEventsMatch(t *testing.T) {
	t.Run("prefix match allows trailing events", func(t *testing.T) {
		AssertEventsMatch(t, history()[:1], history())
	})

	t.Run("fewer actual events is fatal", func(t *testing.T) {
		rec := capture(func(tb TB) {
			AssertEventsMatch(tb, history(), history()[:1])
		})
		assert.True(t, rec.didFatal)
		assert.Contains(t, rec.msg, "at least 3 events")
	})
}

func TestMatchers(t *testing.T) {
	t.Run("MatchEventType", func(t *testing.T) {
		matcher := MatchEventType("ProductRegistered")

		assert.True(t, matcher(ProductRegistered{ProductID: "p-1"}))
		assert.False(t, matcher(ProductPriced{ProductID: "p-1"}))
		assert.True(t, MatchEventType("product.imported.v2")(ProductImported{ProductID: "p-1"}))
	})

	t.Run("MatchEvent", func(t *testing.T) {
		matcher := MatchEvent(ProductRegistered{ProductID: "p-1", Name: "Widget"})

		assert.True(t, matcher(ProductRegistered{ProductID: "p-1", Name: "Widget"}))
		assert.False(t, matcher(ProductRegistered{ProductID: "p-1", Name: "Gadget"}))
		assert.False(t, matcher(ProductPriced{ProductID: "p-1"}))
	})
}

func TestMatchAssertions(t *testing.T) {
	t.Run("AssertAnyMatch", func(t *testing.T) {
		AssertAnyMatch(t, history(), MatchEventType("ProductPriced"))

		rec := capture(func(tb TB) {
			AssertAnyMatch(tb, history()[:1], MatchEventType("ProductPriced"))
		})
		assert.True(t, rec.didFail)
	})

	t.Run("AssertAllMatch", func(t *testing.T) {
		registrations := []any{
			ProductRegistered{ProductID: "p-1"},
			ProductRegistered{ProductID: "p-2"},
		}
		AssertAllMatch(t, registrations, MatchEventType("ProductRegistered"))
		AssertAllMatch(t, []any{}, MatchEventType("ProductRegistered"))

		rec := capture(func(tb TB) {
			AssertAllMatch(tb, history(), MatchEventType("ProductRegistered"))
		})
		assert.True(t, rec.didFail)
	})

	t.Run("AssertNoneMatch", func(t *testing.T) {
		AssertNoneMatch(t, history()[:1], MatchEventType("ProductPriced"))

		rec := capture(func(tb TB) {
			AssertNoneMatch(tb, history(), MatchEventType("ProductPriced"))
		})
		assert.True(t, rec.didFail)
		assert.Contains(t, rec.msg, "unexpectedly matched")
	})
}

func TestCountAndFilter(t *testing.T) {
	events := append(history(), ProductPriced{ProductID: "p-1", Price: 12})

	assert.Equal(t, 2, CountMatches(events, MatchEventType("ProductPriced")))
	assert.Zero(t, CountMatches(events, MatchEventType("ProductRenamed")))

	filtered := FilterEvents(events, MatchEventType("ProductPriced"))
	require.Len(t, filtered, 2)

	assert.Empty(t, FilterEvents(events, MatchEventType("ProductRenamed")))
}
