package memory

import (
	"context"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

var _ adapters.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps processed-command records in process memory.
// Records do not survive a restart, which makes the store a fit for tests
// and single-node development setups only.
type IdempotencyStore struct {
	mu    sync.RWMutex
	byKey map[string]*adapters.IdempotencyRecord

	// sweepEvery is the background sweep interval, zero means no sweeping.
	sweepEvery time.Duration
	// retention is how long a record survives before a sweep removes it.
	retention time.Duration

	stop chan struct{}
	once sync.Once
}

// IdempotencyStoreOption configures an IdempotencyStore.
type IdempotencyStoreOption func(*IdempotencyStore)

// WithCleanupInterval enables a background sweep that runs at the given
// interval. Zero leaves sweeping disabled.
func WithCleanupInterval(every time.Duration) IdempotencyStoreOption {
	return func(st *IdempotencyStore) {
		st.sweepEvery = every
	}
}

// WithMaxAge sets how long records are retained before a sweep removes them.
func WithMaxAge(age time.Duration) IdempotencyStoreOption {
	return func(st *IdempotencyStore) {
		st.retention = age
	}
}

// NewIdempotencyStore creates an empty in-memory IdempotencyStore.
func NewIdempotencyStore(opts ...IdempotencyStoreOption) *IdempotencyStore {
	st := &IdempotencyStore{
		byKey:     make(map[string]*adapters.IdempotencyRecord),
		retention: 24 * time.Hour,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(st)
	}

	if st.sweepEvery > 0 {
		// Arm the ticker before returning so the first sweep fires one
		// full interval from now.
		tick := time.NewTicker(st.sweepEvery)
		go st.sweep(tick)
	}
	return st
}

func (st *IdempotencyStore) sweep(tick *time.Ticker) {
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			_, _ = st.Cleanup(context.Background(), st.retention)
		case <-st.stop:
			return
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (st *IdempotencyStore) Close() error {
	st.once.Do(func() {
		close(st.stop)
	})
	return nil
}

// Store saves a record under its key, replacing any earlier record.
// The store keeps its own copy.
func (st *IdempotencyStore) Store(ctx context.Context, rec *adapters.IdempotencyRecord) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.byKey[rec.Key] = adapters.CopyIdempotencyRecord(rec)
	return nil
}

// Get returns a copy of the record for key, or nil when the key is unknown
// or the record has expired.
func (st *IdempotencyStore) Get(ctx context.Context, key string) (*adapters.IdempotencyRecord, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	rec, ok := st.byKey[key]
	if !ok || rec.IsExpired() {
		return nil, nil
	}
	return adapters.CopyIdempotencyRecord(rec), nil
}

// Exists reports whether a live record is stored under key.
func (st *IdempotencyStore) Exists(ctx context.Context, key string) (bool, error) {
	rec, err := st.Get(ctx, key)
	return rec != nil, err
}

// Delete removes the record for key if one exists.
func (st *IdempotencyStore) Delete(ctx context.Context, key string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.byKey, key)
	return nil
}

// Cleanup removes records processed before the cutoff as well as records
// whose own expiry has passed. It returns the number of removals.
func (st *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	limit := time.Now().Add(-olderThan)
	var removed int64
	for key, rec := range st.byKey {
		if rec.ProcessedAt.Before(limit) || rec.IsExpired() {
			delete(st.byKey, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored records, expired ones included.
func (st *IdempotencyStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byKey)
}

// Clear drops every record.
func (st *IdempotencyStore) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.byKey = make(map[string]*adapters.IdempotencyRecord)
}
