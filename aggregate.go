package behave

// Aggregate is an immutable snapshot of domain state, identified by an
// aggregate id. Snapshots are produced by behavior folds and never mutated in
// place: folding an event yields a new snapshot, and the previous one is
// discarded when superseded.
//
// Aggregates are typically plain value structs:
//
//	type Account struct {
//	    ID      string
//	    Balance int64
//	}
//
//	func (a Account) AggregateID() string { return a.ID }
type Aggregate interface {
	// AggregateID returns the unique identifier for this aggregate instance.
	AggregateID() string
}

// AggregateFactory produces an empty snapshot for an aggregate id. Used by
// tooling that needs a placeholder before the creation event has been folded.
type AggregateFactory[A Aggregate] func(id string) A
