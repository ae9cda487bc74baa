package behave

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// Serializer converts event payloads to and from their stored form.
type Serializer interface {
	// Serialize encodes an event into bytes.
	Serialize(event any) ([]byte, error)

	// Deserialize converts bytes back to an event. The eventType selects
	// the target Go type.
	Deserialize(data []byte, eventType string) (any, error)
}

// EventRegistry maps stored event type names to Go types so payloads can be
// deserialized back into concrete values.
type EventRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
}

// NewEventRegistry returns an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{byName: make(map[string]reflect.Type)}
}

// typeOf resolves the concrete struct type of an example event, unwrapping
// a pointer if one was passed.
func typeOf(example any) reflect.Type {
	rt := reflect.TypeOf(example)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt
}

// Register maps eventType to the Go type of example.
func (reg *EventRegistry) Register(eventType string, example any) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.byName[eventType] = typeOf(example)
}

// RegisterAll registers each example under its event name.
func (reg *EventRegistry) RegisterAll(examples ...any) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, ex := range examples {
		reg.byName[EventName(ex)] = typeOf(ex)
	}
}

// Lookup returns the Go type registered under eventType.
func (reg *EventRegistry) Lookup(eventType string) (reflect.Type, bool) {
	reg.mu.RLock()
	rt, ok := reg.byName[eventType]
	reg.mu.RUnlock()
	return rt, ok
}

// RegisteredTypes returns every registered event type name.
func (reg *EventRegistry) RegisteredTypes() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	names := make([]string, 0, len(reg.byName))
	for name := range reg.byName {
		names = append(names, name)
	}
	return names
}

// Count reports how many event types are registered.
func (reg *EventRegistry) Count() int {
	reg.mu.RLock()
	n := len(reg.byName)
	reg.mu.RUnlock()
	return n
}

// JSONSerializer is the default Serializer, encoding payloads as JSON.
type JSONSerializer struct {
	reg *EventRegistry
}

// NewJSONSerializer returns a JSONSerializer with an empty registry.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{reg: NewEventRegistry()}
}

// NewJSONSerializerWithRegistry returns a JSONSerializer backed by reg.
// A nil registry gets a fresh empty one.
func NewJSONSerializerWithRegistry(reg *EventRegistry) *JSONSerializer {
	if reg == nil {
		reg = NewEventRegistry()
	}
	return &JSONSerializer{reg: reg}
}

// Register maps eventType to example's Go type in the registry.
func (js *JSONSerializer) Register(eventType string, example any) {
	js.reg.Register(eventType, example)
}

// RegisterAll registers each example under its event name.
func (js *JSONSerializer) RegisterAll(examples ...any) {
	js.reg.RegisterAll(examples...)
}

// Registry exposes the serializer's EventRegistry.
func (js *JSONSerializer) Registry() *EventRegistry {
	return js.reg
}

// Serialize encodes an event as JSON.
func (js *JSONSerializer) Serialize(event any) ([]byte, error) {
	if event == nil {
		return nil, NewSerializationError("nil", "serialize", fmt.Errorf("nil event"))
	}

	b, err := json.Marshal(event)
	if err != nil {
		return nil, NewSerializationError(EventName(event), "serialize", err)
	}
	return b, nil
}

// Deserialize decodes JSON bytes back into an event value. Registered types
// come back as concrete values; anything else falls back to a
// map[string]any, which replay treats like any other unmatched event type.
func (js *JSONSerializer) Deserialize(payload []byte, eventType string) (any, error) {
	if len(payload) == 0 {
		return nil, NewSerializationError(eventType, "deserialize", fmt.Errorf("empty payload"))
	}

	rt, ok := js.reg.Lookup(eventType)
	if !ok {
		var generic map[string]any
		if err := json.Unmarshal(payload, &generic); err != nil {
			return nil, NewSerializationError(eventType, "deserialize", err)
		}
		return generic, nil
	}

	target := reflect.New(rt)
	if err := json.Unmarshal(payload, target.Interface()); err != nil {
		return nil, NewSerializationError(eventType, "deserialize", err)
	}

	// Hand back the value, not the pointer.
	return target.Elem().Interface(), nil
}

// SerializeEvent wraps a serialized payload with its type name and metadata.
func SerializeEvent(ser Serializer, event any, metadata Metadata) (EventData, error) {
	eventType := EventName(event)
	if eventType == "" {
		return EventData{}, NewSerializationError("", "serialize", fmt.Errorf("unnamed event type"))
	}

	payload, err := ser.Serialize(event)
	if err != nil {
		return EventData{}, err
	}

	return EventData{Type: eventType, Data: payload, Metadata: metadata}, nil
}

// DeserializeEvent rehydrates a StoredEvent into an Event with a decoded
// payload.
func DeserializeEvent(ser Serializer, stored StoredEvent) (Event, error) {
	payload, err := ser.Deserialize(stored.Data, stored.Type)
	if err != nil {
		return Event{}, err
	}

	return EventFromStored(stored, payload), nil
}
