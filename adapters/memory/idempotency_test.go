package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...IdempotencyStoreOption) *IdempotencyStore {
	t.Helper()
	store := NewIdempotencyStore(opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// liveRecord returns a record for key that expires an hour from now.
func liveRecord(key string) *adapters.IdempotencyRecord {
	return &adapters.IdempotencyRecord{
		Key:         key,
		CommandType: "RegisterProduct",
		ProcessedAt: time.Now(),
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

// staleRecord returns a record for key that expired an hour ago.
func staleRecord(key string) *adapters.IdempotencyRecord {
	return &adapters.IdempotencyRecord{
		Key:         key,
		CommandType: "RegisterProduct",
		ProcessedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}
}

func mustStore(t *testing.T, store *IdempotencyStore, record *adapters.IdempotencyRecord) {
	t.Helper()
	require.NoError(t, store.Store(context.Background(), record))
}

func TestNewIdempotencyStore(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		store := newStore(t)

		assert.Zero(t, store.Len())
		assert.Equal(t, 24*time.Hour, store.retention)
		assert.Zero(t, store.sweepEvery)
	})

	t.Run("options override the defaults", func(t *testing.T) {
		store := newStore(t, WithMaxAge(48*time.Hour))

		assert.Equal(t, 48*time.Hour, store.retention)
	})

	t.Run("background sweep removes stale records", func(t *testing.T) {
		store := newStore(t,
			WithCleanupInterval(20*time.Millisecond),
			WithMaxAge(time.Millisecond),
		)

		mustStore(t, store, staleRecord("register-product-42"))
		require.Equal(t, 1, store.Len())

		assert.Eventually(t, func() bool { return store.Len() == 0 },
			2*time.Second, 10*time.Millisecond)
	})

	t.Run("Close is safe to call twice", func(t *testing.T) {
		store := NewIdempotencyStore(WithCleanupInterval(time.Minute))

		require.NoError(t, store.Close())
		require.NoError(t, store.Close())
	})
}

func TestIdempotencyStore_StoreAndGet(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips a successful outcome", func(t *testing.T) {
		store := newStore(t)

		record := liveRecord("register-product-42")
		record.AggregateID = "prod-42"
		record.Version = 5
		record.Success = true
		record.Response = []byte(`{"aggregateId":"prod-42","version":5}`)
		mustStore(t, store, record)

		got, err := store.Get(ctx, "register-product-42")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "RegisterProduct", got.CommandType)
		assert.Equal(t, "prod-42", got.AggregateID)
		assert.Equal(t, int64(5), got.Version)
		assert.True(t, got.Success)
		assert.JSONEq(t, `{"aggregateId":"prod-42","version":5}`, string(got.Response))
	})

	t.Run("round trips a failed outcome", func(t *testing.T) {
		store := newStore(t)

		record := liveRecord("change-price-42")
		record.CommandType = "ChangePrice"
		record.Success = false
		record.Error = "price must be positive"
		mustStore(t, store, record)

		got, err := store.Get(ctx, "change-price-42")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.False(t, got.Success)
		assert.Equal(t, "price must be positive", got.Error)
	})

	t.Run("storing the same key replaces the record", func(t *testing.T) {
		store := newStore(t)

		first := liveRecord("register-product-42")
		first.Version = 1
		mustStore(t, store, first)

		second := liveRecord("register-product-42")
		second.Version = 5
		mustStore(t, store, second)

		require.Equal(t, 1, store.Len())
		got, err := store.Get(ctx, "register-product-42")
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.Version)
	})

	t.Run("unknown key is nil, not an error", func(t *testing.T) {
		got, err := newStore(t).Get(ctx, "unknown")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("expired record reads as missing", func(t *testing.T) {
		store := newStore(t)
		mustStore(t, store, staleRecord("register-product-42"))

		got, err := store.Get(ctx, "register-product-42")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("reads hand out copies", func(t *testing.T) {
		store := newStore(t)
		mustStore(t, store, liveRecord("register-product-42"))

		first, _ := store.Get(ctx, "register-product-42")
		second, _ := store.Get(ctx, "register-product-42")

		first.AggregateID = "modified"
		assert.NotEqual(t, first.AggregateID, second.AggregateID)
	})
}

func TestIdempotencyStore_Exists(t *testing.T) {
	const key = "register-product-42"
	cases := map[string]struct {
		record *adapters.IdempotencyRecord
		want   bool
	}{
		"unknown key":            {nil, false},
		"live record":            {liveRecord(key), true},
		"expired record":         {staleRecord(key), false},
		"zero expiry is expired": {&adapters.IdempotencyRecord{Key: key}, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			if tc.record != nil {
				mustStore(t, store, tc.record)
			}

			exists, err := store.Exists(context.Background(), key)

			require.NoError(t, err)
			assert.Equal(t, tc.want, exists)
		})
	}
}

func TestIdempotencyStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	mustStore(t, store, liveRecord("register-product-42"))

	require.NoError(t, store.Delete(ctx, "register-product-42"))

	exists, err := store.Exists(ctx, "register-product-42")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "unknown"))
}

func TestIdempotencyStore_Cleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("removes records older than the cutoff", func(t *testing.T) {
		store := newStore(t)
		mustStore(t, store, staleRecord("old-command"))
		mustStore(t, store, liveRecord("new-command"))

		removed, err := store.Cleanup(ctx, time.Hour)

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, 1, store.Len())

		exists, _ := store.Exists(ctx, "new-command")
		assert.True(t, exists)
	})

	t.Run("removes expired records regardless of age", func(t *testing.T) {
		store := newStore(t)
		record := liveRecord("expired-command")
		record.ExpiresAt = time.Now().Add(-time.Minute)
		mustStore(t, store, record)

		removed, err := store.Cleanup(ctx, 24*time.Hour)

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})
}

func TestIdempotencyStore_Clear(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 5; i++ {
		mustStore(t, store, liveRecord(fmt.Sprintf("key-%d", i)))
	}
	require.Equal(t, 5, store.Len())

	store.Clear()

	assert.Zero(t, store.Len())
}

func TestIdempotencyStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			record := liveRecord("concurrent-key")
			record.Version = int64(i)
			_ = store.Store(ctx, record)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = store.Get(ctx, "concurrent-key")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, _ = store.Exists(ctx, "concurrent-key")
		}
	}()

	wg.Wait()
}
