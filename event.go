package behave

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Expected-version sentinels for optimistic concurrency control.
const (
	// AnyVersion appends regardless of the stream's current version.
	AnyVersion int64 = -1

	// NoStream requires that the stream does not exist yet.
	NoStream int64 = 0

	// StreamExists requires that the stream already exists.
	StreamExists int64 = -2
)

// StreamID names an event stream: the aggregate kind plus an instance ID,
// rendered as "Kind-ID".
type StreamID struct {
	Kind string // aggregate kind, e.g. "Product"
	ID   string // instance identifier within the kind
}

// NewStreamID creates a StreamID from kind and id.
func NewStreamID(kind, id string) StreamID {
	return StreamID{Kind: kind, ID: id}
}

// ParseStreamID splits a "Kind-ID" string. Only the first dash separates the
// parts, so IDs may themselves contain dashes.
func ParseStreamID(raw string) (StreamID, error) {
	kind, id, ok := strings.Cut(raw, "-")
	if !ok || kind == "" || id == "" {
		return StreamID{}, fmt.Errorf("behave: invalid stream ID format %q, expected 'Kind-ID'", raw)
	}
	return StreamID{Kind: kind, ID: id}, nil
}

// String renders the stream ID as "Kind-ID".
func (sid StreamID) String() string {
	return sid.Kind + "-" + sid.ID
}

// IsZero reports whether both parts are empty.
func (sid StreamID) IsZero() bool {
	return sid.Kind == "" && sid.ID == ""
}

// Validate fails when either part is missing.
func (sid StreamID) Validate() error {
	if sid.Kind == "" {
		return fmt.Errorf("behave: stream kind is required")
	}
	if sid.ID == "" {
		return fmt.Errorf("behave: stream ID is required")
	}
	return nil
}

// Metadata carries the contextual envelope stored alongside an event:
// tracing identifiers, the origin command, tenancy, and free-form pairs.
type Metadata struct {
	CorrelationID string            `json:"correlationId,omitempty"` // links related events across services
	CausationID   string            `json:"causationId,omitempty"`   // command or event that caused this one
	CommandName   string            `json:"commandName,omitempty"`   // command whose validation emitted this event
	UserID        string            `json:"userId,omitempty"`        // acting user
	TenantID      string            `json:"tenantId,omitempty"`      // tenant in multi-tenant deployments
	Custom        map[string]string `json:"custom,omitempty"`        // application-specific pairs
}

// WithCorrelationID returns a copy with the correlation ID set.
func (md Metadata) WithCorrelationID(id string) Metadata {
	md.CorrelationID = id
	return md
}

// WithCausationID returns a copy with the causation ID set.
func (md Metadata) WithCausationID(id string) Metadata {
	md.CausationID = id
	return md
}

// WithCommandName returns a copy with the command name set.
func (md Metadata) WithCommandName(name string) Metadata {
	md.CommandName = name
	return md
}

// WithUserID returns a copy with the user ID set.
func (md Metadata) WithUserID(id string) Metadata {
	md.UserID = id
	return md
}

// WithTenantID returns a copy with the tenant ID set.
func (md Metadata) WithTenantID(id string) Metadata {
	md.TenantID = id
	return md
}

// WithCustom returns a copy with one more custom pair. The custom map is
// copied, so derived Metadata values never share state.
func (md Metadata) WithCustom(key, value string) Metadata {
	custom := make(map[string]string, len(md.Custom)+1)
	for k, v := range md.Custom {
		custom[k] = v
	}
	custom[key] = value
	md.Custom = custom
	return md
}

// IsEmpty reports whether no field is set.
func (md Metadata) IsEmpty() bool {
	return md.CorrelationID == "" && md.CausationID == "" && md.CommandName == "" &&
		md.UserID == "" && md.TenantID == "" && len(md.Custom) == 0
}

// EventData is an event ready to be stored: its type name, serialized
// payload, and optional metadata envelope.
type EventData struct {
	Type     string   // event type identifier, e.g. "ProductCreated"
	Data     []byte   // serialized payload
	Metadata Metadata // optional context
}

// NewEventData creates an EventData with the given type and payload.
func NewEventData(eventType string, data []byte) EventData {
	return EventData{Type: eventType, Data: data}
}

// WithMetadata returns a copy with the metadata set.
func (ed EventData) WithMetadata(md Metadata) EventData {
	ed.Metadata = md
	return ed
}

// Validate fails when the type or payload is missing.
func (ed EventData) Validate() error {
	if ed.Type == "" {
		return fmt.Errorf("behave: event type is required")
	}
	if len(ed.Data) == 0 {
		return fmt.Errorf("behave: event data is required")
	}
	return nil
}

// StoredEvent is a persisted event with its storage coordinates.
type StoredEvent struct {
	ID             string    // globally unique event identifier
	StreamID       string    // owning stream
	Type           string    // event type identifier
	Data           []byte    // serialized payload
	Metadata       Metadata  // context captured at append time
	Version        int64     // 1-based position within the stream
	GlobalPosition uint64    // ordering position across all streams
	Timestamp      time.Time // when the event was stored
}

// StreamInfo describes one stream's current extent.
type StreamInfo struct {
	StreamID   string
	Kind       string
	Version    int64
	EventCount int64 // total events appended to the stream
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Event is the deserialized, application-facing form of a stored event.
type Event struct {
	ID             string
	StreamID       string
	Type           string
	Data           any // deserialized payload
	Metadata       Metadata
	Version        int64
	GlobalPosition uint64 // ordering position across all streams
	Timestamp      time.Time
}

// EventFromStored pairs a StoredEvent's coordinates with its deserialized
// payload.
func EventFromStored(rec StoredEvent, data any) Event {
	return Event{
		ID:             rec.ID,
		StreamID:       rec.StreamID,
		Type:           rec.Type,
		Data:           data,
		Metadata:       rec.Metadata,
		Version:        rec.Version,
		GlobalPosition: rec.GlobalPosition,
		Timestamp:      rec.Timestamp,
	}
}

// EventNamer lets an event choose its stored type name instead of the
// reflected struct name. Useful when renaming types without rewriting
// history.
type EventNamer interface {
	EventName() string
}

// EventName returns the type name used to identify event in streams and in
// serializer registries. Pointer indirection is stripped, so Foo and *Foo
// share a name.
func EventName(event any) string {
	if event == nil {
		return ""
	}
	if n, ok := event.(EventNamer); ok {
		if name := n.EventName(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(event)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}
