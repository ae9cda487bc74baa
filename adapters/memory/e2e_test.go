package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	behave "github.com/AshkanYarmoradi/go-behave"
	"github.com/AshkanYarmoradi/go-behave/adapters/memory"
	"github.com/AshkanYarmoradi/go-behave/testing/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderRuntime(t *testing.T, opts ...behave.RuntimeOption[testutil.Order]) (*behave.Runtime[testutil.Order], *memory.MemoryAdapter, *behave.Journal) {
	t.Helper()

	ad := memory.NewAdapter()
	journal := behave.NewJournal(ad)
	testutil.RegisterOrderEvents(journal)

	rt := behave.NewRuntime(testutil.NewOrderBehavior(), journal, opts...)
	t.Cleanup(func() {
		_ = rt.Close()
		_ = ad.Close()
	})
	return rt, ad, journal
}

// ===========================================================================
// E2E Test: Complete Order Lifecycle over the Memory Adapter
// ===========================================================================

func TestE2E_OrderLifecycle(t *testing.T) {
	rt, _, journal := newOrderRuntime(t)
	ctx := context.Background()

	res, err := rt.Submit(ctx, "order-123", testutil.PlaceOrder{OrderID: "order-123", CustomerID: "customer-456"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Order", res.Kind)
	assert.Equal(t, "order-123", res.AggregateID)
	assert.Equal(t, int64(1), res.Version)

	res, err = rt.Submit(ctx, "order-123", testutil.AddOrderItem{OrderID: "order-123", SKU: "SKU-001", Count: 2, Price: 29.99})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, int64(2), res.Version)

	_, err = rt.Submit(ctx, "order-123", testutil.AddOrderItem{OrderID: "order-123", SKU: "SKU-002", Count: 1, Price: 49.99})
	require.NoError(t, err)

	order, version, err := rt.State(ctx, "order-123")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	assert.Equal(t, "customer-456", order.CustomerID)
	assert.Equal(t, testutil.OrderStatusPlaced, order.Status)
	assert.Len(t, order.Items, 2)
	assert.InDelta(t, 109.97, order.Total(), 0.001)

	res, err = rt.Submit(ctx, "order-123", testutil.ShipOrder{OrderID: "order-123", Tracking: "TRACK-789"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Version)

	order, version, err = rt.State(ctx, "order-123")
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
	assert.Equal(t, testutil.OrderStatusShipped, order.Status)
	assert.Equal(t, "TRACK-789", order.Tracking)

	stored, err := journal.LoadRaw(ctx, "Order-order-123", 0)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Equal(t, "OrderPlaced", stored[0].Type)
	assert.Equal(t, "OrderItemAdded", stored[1].Type)
	assert.Equal(t, "OrderItemAdded", stored[2].Type)
	assert.Equal(t, "OrderShipped", stored[3].Type)
}

// ===========================================================================
// E2E Test: Rejections Leave No Trace in the Journal
// ===========================================================================

func TestE2E_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("creation precondition", func(t *testing.T) {
		rt, ad, journal := newOrderRuntime(t)

		_, err := rt.Submit(ctx, "order-1", testutil.PlaceOrder{OrderID: "order-1", CustomerID: ""})
		require.Error(t, err)
		require.True(t, behave.IsRejection(err))

		rej, ok := behave.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, behave.RejectionPrecondition, rej.Code)
		assert.Contains(t, rej.Reason, "customer id is required")

		version, err := journal.StreamVersion(ctx, "Order-order-1")
		require.NoError(t, err)
		assert.Equal(t, behave.NoStream, version)
		assert.Equal(t, 0, ad.StreamCount())
	})

	t.Run("update command on a missing aggregate", func(t *testing.T) {
		rt, _, _ := newOrderRuntime(t)

		_, err := rt.Submit(ctx, "order-1", testutil.ShipOrder{OrderID: "order-1", Tracking: "TRACK-001"})
		require.Error(t, err)

		rej, ok := behave.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, behave.RejectionUnmatchedCreation, rej.Code)
	})

	t.Run("creation command resubmitted to an existing aggregate", func(t *testing.T) {
		rt, _, _ := newOrderRuntime(t)

		_, err := rt.Submit(ctx, "order-1", testutil.PlaceOrder{OrderID: "order-1", CustomerID: "customer-1"})
		require.NoError(t, err)

		_, err = rt.Submit(ctx, "order-1", testutil.PlaceOrder{OrderID: "order-1", CustomerID: "customer-1"})
		require.Error(t, err)

		rej, ok := behave.AsRejection(err)
		require.True(t, ok)
		assert.Equal(t, behave.RejectionUnmatchedUpdate, rej.Code)
		assert.Equal(t, "order-1", rej.AggregateID)
	})

	t.Run("shipping an empty order", func(t *testing.T) {
		rt, _, _ := newOrderRuntime(t)

		_, err := rt.Submit(ctx, "order-1", testutil.PlaceOrder{OrderID: "order-1", CustomerID: "customer-1"})
		require.NoError(t, err)

		_, err = rt.Submit(ctx, "order-1", testutil.ShipOrder{OrderID: "order-1", Tracking: "TRACK-001"})
		require.Error(t, err)

		rej, ok := behave.AsRejection(err)
		require.True(t, ok)
		assert.Contains(t, rej.Reason, "cannot ship an empty order")

		_, version, err := rt.State(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), version)
	})

	t.Run("cancelling a shipped order", func(t *testing.T) {
		rt, _, _ := newOrderRuntime(t)

		_, err := rt.Submit(ctx, "order-1", testutil.PlaceOrder{OrderID: "order-1", CustomerID: "customer-1"})
		require.NoError(t, err)
		_, err = rt.Submit(ctx, "order-1", testutil.AddOrderItem{OrderID: "order-1", SKU: "SKU-001", Count: 1, Price: 10})
		require.NoError(t, err)
		_, err = rt.Submit(ctx, "order-1", testutil.ShipOrder{OrderID: "order-1", Tracking: "TRACK-001"})
		require.NoError(t, err)

		_, err = rt.Submit(ctx, "order-1", testutil.CancelOrder{OrderID: "order-1", Reason: "changed my mind"})
		require.Error(t, err)

		rej, ok := behave.AsRejection(err)
		require.True(t, ok)
		assert.Contains(t, rej.Reason, "cannot cancel: order is shipped")

		order, version, err := rt.State(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), version)
		assert.Equal(t, testutil.OrderStatusShipped, order.Status)
	})
}

// ===========================================================================
// E2E Test: Concurrent Submissions
// ===========================================================================

func TestE2E_ConcurrentSubmissions(t *testing.T) {
	t.Run("same aggregate serializes without conflicts", func(t *testing.T) {
		rt, _, _ := newOrderRuntime(t)
		ctx := context.Background()

		_, err := rt.Submit(ctx, "order-hot", testutil.PlaceOrder{OrderID: "order-hot", CustomerID: "customer-1"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		errCh := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := rt.Submit(ctx, "order-hot", testutil.AddOrderItem{
					OrderID: "order-hot",
					SKU:     fmt.Sprintf("SKU-%03d", n),
					Count:   1,
					Price:   10,
				})
				errCh <- err
			}(i)
		}
		wg.Wait()
		close(errCh)

		for err := range errCh {
			assert.NoError(t, err)
		}

		order, version, err := rt.State(ctx, "order-hot")
		require.NoError(t, err)
		assert.Equal(t, int64(11), version)
		assert.Len(t, order.Items, 10)
	})

	t.Run("distinct aggregates proceed independently", func(t *testing.T) {
		rt, ad, _ := newOrderRuntime(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				id := fmt.Sprintf("order-%d", n)
				_, err := rt.Submit(ctx, id, testutil.PlaceOrder{OrderID: id, CustomerID: "customer-1"})
				assert.NoError(t, err)
				_, err = rt.Submit(ctx, id, testutil.AddOrderItem{OrderID: id, SKU: "SKU-001", Count: 1, Price: 5})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 20, ad.StreamCount())
		assert.Equal(t, 40, ad.EventCount())
	})
}

// ===========================================================================
// E2E Test: Optimistic Concurrency at the Journal Level
// ===========================================================================

func TestE2E_OptimisticConcurrency(t *testing.T) {
	_, _, journal := newOrderRuntime(t)
	ctx := context.Background()

	placed := testutil.OrderPlaced{OrderID: "race-1", CustomerID: "customer-1"}

	err := journal.Append(ctx, "Order-race-1", []any{placed}, behave.ExpectVersion(behave.NoStream))
	require.NoError(t, err)

	err = journal.Append(ctx, "Order-race-1", []any{placed}, behave.ExpectVersion(behave.NoStream))
	require.Error(t, err)
	assert.True(t, errors.Is(err, behave.ErrConcurrencyConflict))

	err = journal.Append(ctx, "Order-race-1", []any{placed}, behave.ExpectVersion(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, behave.ErrConcurrencyConflict))

	err = journal.Append(ctx, "Order-missing", []any{placed}, behave.ExpectVersion(behave.StreamExists))
	require.Error(t, err)
	assert.True(t, errors.Is(err, behave.ErrStreamNotFound))
}

// ===========================================================================
// E2E Test: Snapshot Recovery
// ===========================================================================

func TestE2E_SnapshotRecovery(t *testing.T) {
	ad := memory.NewAdapter()
	defer ad.Close()
	journal := behave.NewJournal(ad)
	testutil.RegisterOrderEvents(journal)
	ctx := context.Background()

	rt := behave.NewRuntime(testutil.NewOrderBehavior(), journal, behave.WithSnapshots[testutil.Order](2))
	defer rt.Close()

	_, err := rt.Submit(ctx, "order-snap", testutil.PlaceOrder{OrderID: "order-snap", CustomerID: "customer-1"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = rt.Submit(ctx, "order-snap", testutil.AddOrderItem{
			OrderID: "order-snap", SKU: fmt.Sprintf("SKU-%03d", i), Count: 1, Price: 10,
		})
		require.NoError(t, err)
	}

	snap, err := ad.LoadSnapshot(ctx, "Order-order-snap")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(4), snap.Version)

	// A fresh runtime over the same journal resumes from the snapshot.
	rt2 := behave.NewRuntime(testutil.NewOrderBehavior(), journal, behave.WithSnapshots[testutil.Order](2))
	defer rt2.Close()

	order, version, err := rt2.State(ctx, "order-snap")
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
	assert.Len(t, order.Items, 3)
	assert.Equal(t, "customer-1", order.CustomerID)

	// With the snapshot gone, state is rebuilt from events alone.
	require.NoError(t, ad.DeleteSnapshot(ctx, "Order-order-snap"))

	order, version, err = rt2.State(ctx, "order-snap")
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
	assert.Len(t, order.Items, 3)
}

// ===========================================================================
// E2E Test: Metadata Flow from Context to Stored Events
// ===========================================================================

func TestE2E_MetadataFlow(t *testing.T) {
	rt, _, journal := newOrderRuntime(t)

	ctx := behave.WithCorrelationID(context.Background(), "corr-777")
	ctx = behave.WithUserID(ctx, "user-9")

	_, err := rt.Submit(ctx, "order-meta", testutil.PlaceOrder{OrderID: "order-meta", CustomerID: "customer-1"})
	require.NoError(t, err)

	stored, err := journal.LoadRaw(ctx, "Order-order-meta", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	assert.Equal(t, "corr-777", stored[0].Metadata.CorrelationID)
	assert.Equal(t, "user-9", stored[0].Metadata.UserID)
	assert.Equal(t, "PlaceOrder", stored[0].Metadata.CommandName)
}

// ===========================================================================
// E2E Test: Notification Fanout After Commit
// ===========================================================================

type capturePublisher struct {
	mu    sync.Mutex
	notes []*behave.Notification
}

func (p *capturePublisher) Publish(ctx context.Context, notes []*behave.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, notes...)
	return nil
}

func (p *capturePublisher) Destination() string { return "capture" }

func (p *capturePublisher) Notes() []*behave.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*behave.Notification, len(p.notes))
	copy(out, p.notes)
	return out
}

func TestE2E_NotificationFanout(t *testing.T) {
	pub := &capturePublisher{}
	broadcaster := behave.NewBroadcaster(
		[]behave.Publisher{pub},
		[]behave.PublishRoute{{Destination: "capture:orders"}},
	)

	rt, _, _ := newOrderRuntime(t, behave.WithBroadcaster[testutil.Order](broadcaster))
	ctx := context.Background()

	_, err := rt.Submit(ctx, "order-pub", testutil.PlaceOrder{OrderID: "order-pub", CustomerID: "customer-1"})
	require.NoError(t, err)
	_, err = rt.Submit(ctx, "order-pub", testutil.AddOrderItem{OrderID: "order-pub", SKU: "SKU-001", Count: 1, Price: 10})
	require.NoError(t, err)
	_, err = rt.Submit(ctx, "order-pub", testutil.ShipOrder{OrderID: "order-pub", Tracking: "TRACK-001"})
	require.NoError(t, err)

	notes := pub.Notes()
	require.Len(t, notes, 3)

	assert.Equal(t, "OrderPlaced", notes[0].EventType)
	assert.Equal(t, "OrderItemAdded", notes[1].EventType)
	assert.Equal(t, "OrderShipped", notes[2].EventType)

	for i, note := range notes {
		assert.Equal(t, "Order-order-pub", note.StreamID)
		assert.Equal(t, "order-pub", note.AggregateID)
		assert.Equal(t, int64(i+1), note.Version)
		assert.Equal(t, "capture:orders", note.Destination)
		assert.NotEmpty(t, note.Payload)
		assert.Equal(t, note.EventType, note.Headers["event-type"])
	}

	// A rejected command publishes nothing.
	_, err = rt.Submit(ctx, "order-pub", testutil.CancelOrder{OrderID: "order-pub", Reason: "too late"})
	require.Error(t, err)
	assert.Len(t, pub.Notes(), 3)
}

// ===========================================================================
// E2E Test: Long Stream Replay
// ===========================================================================

func TestE2E_LongStreamReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping long stream replay in short mode")
	}

	rt, _, _ := newOrderRuntime(t)
	ctx := context.Background()

	_, err := rt.Submit(ctx, "order-large", testutil.PlaceOrder{OrderID: "order-large", CustomerID: "customer-1"})
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err = rt.Submit(ctx, "order-large", testutil.AddOrderItem{
			OrderID: "order-large",
			SKU:     fmt.Sprintf("SKU-%03d", i),
			Count:   1,
			Price:   float64(i),
		})
		require.NoError(t, err)
	}

	began := time.Now()
	order, version, err := rt.State(ctx, "order-large")
	loadTime := time.Since(began)
	require.NoError(t, err)

	assert.Equal(t, int64(101), version)
	assert.Len(t, order.Items, 100)
	t.Logf("Replayed 101 events in %v", loadTime)
}
