package testutil

import (
	"context"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
)

// MockAdapter is a mock implementation of adapters.JournalAdapter for testing.
// Error fields, when set, are returned by the corresponding method. Events
// seeds the adapter's load results.
type MockAdapter struct {
	AppendErr          error
	LoadErr            error
	GetStreamInfoErr   error
	GetLastPositionErr error
	SaveSnapshotErr    error
	LoadSnapshotErr    error

	Events   []adapters.StoredEvent
	Snapshot *adapters.SnapshotRecord
}

// Append implements adapters.JournalAdapter.
func (ma *MockAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if ma.AppendErr != nil {
		return nil, ma.AppendErr
	}
	base := expectedVersion
	if base < 0 {
		base = 0
	}
	out := make([]adapters.StoredEvent, len(events))
	for i, rec := range events {
		out[i] = adapters.StoredEvent{
			ID:             "event-" + rec.Type,
			StreamID:       streamID,
			Type:           rec.Type,
			Data:           rec.Data,
			Metadata:       rec.Metadata,
			Version:        base + int64(i) + 1,
			GlobalPosition: uint64(i) + 1,
			Timestamp:      time.Now(),
		}
	}
	return out, nil
}

// Load implements adapters.JournalAdapter.
func (ma *MockAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	if ma.LoadErr != nil {
		return nil, ma.LoadErr
	}
	return ma.Events, nil
}

// GetStreamInfo implements adapters.JournalAdapter.
func (ma *MockAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if ma.GetStreamInfoErr != nil {
		return nil, ma.GetStreamInfoErr
	}
	return &adapters.StreamInfo{
		StreamID:   streamID,
		Kind:       adapters.ExtractKind(streamID),
		Version:    int64(len(ma.Events)),
		EventCount: int64(len(ma.Events)),
	}, nil
}

// GetLastPosition implements adapters.JournalAdapter.
func (ma *MockAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if ma.GetLastPositionErr != nil {
		return 0, ma.GetLastPositionErr
	}
	if len(ma.Events) == 0 {
		return 0, nil
	}
	return ma.Events[len(ma.Events)-1].GlobalPosition, nil
}

// Initialize implements adapters.JournalAdapter.
func (ma *MockAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Close implements adapters.JournalAdapter.
func (ma *MockAdapter) Close() error {
	return nil
}

// ===========================================================================
// SnapshotAdapter implementation
// ===========================================================================

// SaveSnapshot implements adapters.SnapshotAdapter.
func (ma *MockAdapter) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	if ma.SaveSnapshotErr != nil {
		return ma.SaveSnapshotErr
	}
	ma.Snapshot = &adapters.SnapshotRecord{
		StreamID: streamID,
		Version:  version,
		Data:     data,
	}
	return nil
}

// LoadSnapshot implements adapters.SnapshotAdapter.
func (ma *MockAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	if ma.LoadSnapshotErr != nil {
		return nil, ma.LoadSnapshotErr
	}
	return ma.Snapshot, nil
}

// DeleteSnapshot implements adapters.SnapshotAdapter.
func (ma *MockAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	ma.Snapshot = nil
	return nil
}

// Ensure MockAdapter implements adapters.JournalAdapter.
var _ adapters.JournalAdapter = (*MockAdapter)(nil)

// Ensure MockAdapter implements adapters.SnapshotAdapter.
var _ adapters.SnapshotAdapter = (*MockAdapter)(nil)
