// Package memory implements the journal adapter interfaces on plain maps and
// slices. Everything lives in process memory, which makes it the adapter of
// choice for unit tests, examples, and projects that have not provisioned a
// database yet.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AshkanYarmoradi/go-behave/adapters"
	"github.com/google/uuid"
)

// Version sentinels re-exported so callers don't need the adapters import.
const (
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
	AnyVersion   = adapters.AnyVersion
)

var _ adapters.JournalAdapter = (*MemoryAdapter)(nil)
var _ adapters.SnapshotAdapter = (*MemoryAdapter)(nil)
var _ adapters.HealthChecker = (*MemoryAdapter)(nil)
var _ adapters.StreamQueryAdapter = (*MemoryAdapter)(nil)

// MemoryAdapter keeps streams, events, and snapshots in process memory.
// All operations are safe for concurrent use.
type MemoryAdapter struct {
	mu           sync.RWMutex
	streams      map[string]*journalStream
	journal      []adapters.StoredEvent
	lastPosition uint64
	snapshots    map[string]*adapters.SnapshotRecord
	migrations   []adapters.MigrationInfo
	closed       bool
}

type journalStream struct {
	meta   adapters.StreamInfo
	events []adapters.StoredEvent
}

// Option configures the adapter built by NewAdapter.
type Option func(*MemoryAdapter)

// NewAdapter creates an empty in-memory journal.
func NewAdapter(opts ...Option) *MemoryAdapter {
	ma := &MemoryAdapter{
		streams:   make(map[string]*journalStream),
		snapshots: make(map[string]*adapters.SnapshotRecord),
	}
	for _, o := range opts {
		o(ma)
	}
	return ma
}

// read runs fn under the read lock, failing fast when ctx is done or the
// adapter has been closed.
func (ma *MemoryAdapter) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ma.mu.RLock()
	defer ma.mu.RUnlock()
	if ma.closed {
		return adapters.ErrAdapterClosed
	}
	return fn()
}

// write is the exclusive-lock counterpart of read.
func (ma *MemoryAdapter) write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ma.mu.Lock()
	defer ma.mu.Unlock()
	if ma.closed {
		return adapters.ErrAdapterClosed
	}
	return fn()
}

// Initialize is a no-op; there is nothing to provision.
func (ma *MemoryAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Append stores events on streamID, enforcing optimistic concurrency against
// expectedVersion. The first append to a new stream also creates the stream
// record.
func (ma *MemoryAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	var stored []adapters.StoredEvent
	err := ma.write(ctx, func() error {
		if streamID == "" {
			return adapters.ErrEmptyStreamID
		}
		if len(events) == 0 {
			return adapters.ErrNoEvents
		}

		stream := ma.streams[streamID]
		var version int64
		if stream != nil {
			version = stream.meta.Version
		}
		if err := adapters.CheckVersion(streamID, expectedVersion, version, stream != nil); err != nil {
			return err
		}

		now := time.Now()
		if stream == nil {
			stream = &journalStream{meta: adapters.StreamInfo{
				StreamID: streamID, Kind: adapters.ExtractKind(streamID),
				CreatedAt: now, UpdatedAt: now,
			}}
			ma.streams[streamID] = stream
		}

		stored = make([]adapters.StoredEvent, len(events))
		for i, event := range events {
			ma.lastPosition++
			version++
			stored[i] = adapters.StoredEvent{
				StreamID:       streamID,
				Version:        version,
				GlobalPosition: ma.lastPosition,
				ID:             uuid.New().String(),
				Type:           event.Type,
				Data:           event.Data,
				Metadata:       event.Metadata,
				Timestamp:      now,
			}
			stream.events = append(stream.events, stored[i])
			ma.journal = append(ma.journal, stored[i])
		}

		stream.meta.Version = version
		stream.meta.EventCount = int64(len(stream.events))
		stream.meta.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Load returns the events of a stream with versions greater than fromVersion.
// An unknown stream yields an empty slice, not an error.
func (ma *MemoryAdapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	events := []adapters.StoredEvent{}
	err := ma.read(ctx, func() error {
		if streamID == "" {
			return adapters.ErrEmptyStreamID
		}
		stream := ma.streams[streamID]
		if stream == nil {
			return nil
		}
		// Stream events are ordered by version, so the cut point is a search.
		start := sort.Search(len(stream.events), func(i int) bool {
			return stream.events[i].Version > fromVersion
		})
		events = append(events, stream.events[start:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetStreamInfo returns a copy of the stream's metadata.
func (ma *MemoryAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	var info adapters.StreamInfo
	err := ma.read(ctx, func() error {
		stream := ma.streams[streamID]
		if stream == nil {
			return NewStreamNotFoundError(streamID)
		}
		info = stream.meta
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetLastPosition reports the global position of the newest stored event.
func (ma *MemoryAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	var position uint64
	err := ma.read(ctx, func() error {
		position = ma.lastPosition
		return nil
	})
	return position, err
}

// Close marks the adapter closed. Later calls return ErrAdapterClosed.
func (ma *MemoryAdapter) Close() error {
	ma.mu.Lock()
	ma.closed = true
	ma.mu.Unlock()
	return nil
}

// SaveSnapshot stores a snapshot for streamID, replacing any previous one.
func (ma *MemoryAdapter) SaveSnapshot(ctx context.Context, streamID string, version int64, data []byte) error {
	return ma.write(ctx, func() error {
		rec := adapters.SnapshotRecord{StreamID: streamID, Version: version, Data: data}
		ma.snapshots[streamID] = &rec
		return nil
	})
}

// LoadSnapshot returns a copy of the snapshot for streamID, or nil when
// there is none.
func (ma *MemoryAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	var snapshot *adapters.SnapshotRecord
	err := ma.read(ctx, func() error {
		if s := ma.snapshots[streamID]; s != nil {
			dup := *s
			snapshot = &dup
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// DeleteSnapshot removes the snapshot for streamID if present.
func (ma *MemoryAdapter) DeleteSnapshot(ctx context.Context, streamID string) error {
	return ma.write(ctx, func() error {
		delete(ma.snapshots, streamID)
		return nil
	})
}

// Ping reports whether the adapter is open.
func (ma *MemoryAdapter) Ping(ctx context.Context) error {
	return ma.read(ctx, func() error { return nil })
}

// ListStreams returns stream summaries sorted by ID, optionally filtered by
// an ID prefix and capped at limit.
func (ma *MemoryAdapter) ListStreams(ctx context.Context, prefix string, limit int) ([]adapters.StreamSummary, error) {
	var summaries []adapters.StreamSummary
	err := ma.read(ctx, func() error {
		for id, stream := range ma.streams {
			if prefix != "" && !strings.HasPrefix(id, prefix) {
				continue
			}
			summary := adapters.StreamSummary{
				StreamID:    id,
				EventCount:  stream.meta.EventCount,
				LastUpdated: stream.meta.UpdatedAt,
			}
			if n := len(stream.events); n > 0 {
				summary.LastEventType = stream.events[n-1].Type
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].StreamID < summaries[j].StreamID })
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// GetStreamEvents returns a page of a stream's events, at most limit entries
// after fromVersion. A zero or negative limit defaults to 100.
func (ma *MemoryAdapter) GetStreamEvents(ctx context.Context, streamID string, fromVersion int64, limit int) ([]adapters.StoredEvent, error) {
	events, err := ma.Load(ctx, streamID, fromVersion)
	if err != nil {
		return nil, err
	}
	if limit = adapters.DefaultLimit(limit, 100); len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// GetJournalStats aggregates event counts across the whole journal. The top
// five event types are reported with ties broken alphabetically.
func (ma *MemoryAdapter) GetJournalStats(ctx context.Context) (*adapters.JournalStats, error) {
	stats := &adapters.JournalStats{}
	counts := make(map[string]int64)
	err := ma.read(ctx, func() error {
		stats.TotalEvents = int64(len(ma.journal))
		stats.TotalStreams = int64(len(ma.streams))
		for _, event := range ma.journal {
			counts[event.Type]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.EventTypes = int64(len(counts))
	if stats.TotalStreams > 0 {
		stats.AvgEventsPerStream = float64(stats.TotalEvents) / float64(stats.TotalStreams)
	}

	top := make([]adapters.EventTypeCount, 0, len(counts))
	for eventType, count := range counts {
		top = append(top, adapters.EventTypeCount{Type: eventType, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Type < top[j].Type
	})
	if len(top) > 5 {
		top = top[:5]
	}
	stats.TopEventTypes = top
	return stats, nil
}

// Reset drops every stream, event, snapshot, and migration record.
func (ma *MemoryAdapter) Reset() {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	clear(ma.streams)
	ma.journal = nil
	ma.lastPosition = 0
	clear(ma.snapshots)
	ma.migrations = nil
}

// EventCount returns the total number of stored events.
func (ma *MemoryAdapter) EventCount() int {
	ma.mu.RLock()
	n := len(ma.journal)
	ma.mu.RUnlock()
	return n
}

// StreamCount reports how many streams exist.
func (ma *MemoryAdapter) StreamCount() int {
	ma.mu.RLock()
	n := len(ma.streams)
	ma.mu.RUnlock()
	return n
}
