package behave

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Notification describes one committed event handed to publishers after a
// successful submit.
type Notification struct {
	// StreamID is the stream the event was appended to.
	StreamID string

	// Kind is the aggregate kind that decided the event.
	Kind string

	// AggregateID is the aggregate the event belongs to.
	AggregateID string

	// EventType is the event's registered type name.
	EventType string

	// Event is the event payload as emitted by the behavior.
	Event any

	// Payload is the event serialized with the journal's serializer, the
	// same bytes that were appended.
	Payload []byte

	// Headers carry stream and metadata fields for transports that support
	// per-message headers.
	Headers map[string]string

	// Version is the stream version the event was appended at.
	Version int64

	// Timestamp is when the submit completed.
	Timestamp time.Time

	// Metadata carries the metadata stamped on the append.
	Metadata Metadata

	// Destination is filled in by the broadcaster from the matched route.
	Destination string
}

// Publisher delivers notifications to an external system.
type Publisher interface {
	// Publish delivers a batch of notifications. Partial failure
	// semantics are up to the publisher.
	Publish(ctx context.Context, notes []*Notification) error

	// Destination names the route prefix this publisher claims, such as
	// "webhook" or "kafka".
	Destination() string
}

// PublishRoute defines routing rules for notifications.
type PublishRoute struct {
	// EventTypes narrows the route to these event types. Leave empty to
	// route every event.
	EventTypes []string

	// Destination is the delivery target, such as "kafka:orders" or
	// "webhook:https://example.com/events".
	Destination string

	// Filter, when set, drops notifications it returns false for.
	Filter func(note *Notification) bool
}

// matchesEvent reports whether the route covers eventType. A route with no
// EventTypes covers everything.
func (r *PublishRoute) matchesEvent(eventType string) bool {
	return len(r.EventTypes) == 0 || slices.Contains(r.EventTypes, eventType)
}

// DestinationPrefix returns the publisher prefix of a destination, the part
// before the first colon.
func DestinationPrefix(destination string) string {
	if i := strings.Index(destination, ":"); i >= 0 {
		return destination[:i]
	}
	return destination
}

// Broadcaster fans committed events out to publishers according to routes.
// Delivery is at-most-once and post-commit: the journal append has already
// succeeded by the time publishers run, and a publish failure never fails
// the submit that produced the events.
type Broadcaster struct {
	publishers map[string]Publisher
	routes     []PublishRoute
	logger     Logger
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBroadcastLogger sets the logger used for publish failures.
func WithBroadcastLogger(l Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBroadcaster creates a broadcaster over the given publishers and routes.
// Publishers are indexed by their destination prefix.
func NewBroadcaster(publishers []Publisher, routes []PublishRoute, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		publishers: make(map[string]Publisher, len(publishers)),
		routes:     routes,
		logger:     nopLogger{},
	}
	for _, p := range publishers {
		b.publishers[p.Destination()] = p
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Broadcast routes the notifications to their publishers. Every matching
// publisher is attempted even when some fail; failures are logged and
// returned as a joined error.
func (b *Broadcaster) Broadcast(ctx context.Context, notes []*Notification) error {
	if len(notes) == 0 || len(b.routes) == 0 {
		return nil
	}

	var errs []error

	grouped := make(map[string][]*Notification)
	for _, route := range b.routes {
		prefix := DestinationPrefix(route.Destination)
		if _, ok := b.publishers[prefix]; !ok {
			errs = append(errs, fmt.Errorf("behave: no publisher for destination %q", route.Destination))
			continue
		}

		for _, note := range notes {
			if !route.matchesEvent(note.EventType) {
				continue
			}
			if route.Filter != nil && !route.Filter(note) {
				continue
			}

			routed := *note
			routed.Destination = route.Destination
			grouped[prefix] = append(grouped[prefix], &routed)
		}
	}

	for prefix, batch := range grouped {
		if err := b.publishers[prefix].Publish(ctx, batch); err != nil {
			b.logger.Error("failed to publish notifications",
				"destination", prefix,
				"count", len(batch),
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close closes every publisher that supports closing.
func (b *Broadcaster) Close() error {
	var errs []error
	for _, p := range b.publishers {
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
