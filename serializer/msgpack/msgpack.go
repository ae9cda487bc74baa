// Package msgpack provides a MessagePack serializer for behave journals.
//
// MessagePack encodes payloads into a compact binary form, trading the
// readability of JSON for smaller events and faster encoding. Wire it into a
// journal like any other serializer:
//
//	ser := msgpack.NewSerializer()
//	ser.Register("PaymentCaptured", PaymentCaptured{})
//
//	data, err := ser.Serialize(PaymentCaptured{PaymentID: "pay-1"})
//	event, err := ser.Deserialize(data, "PaymentCaptured")
package msgpack

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer is a MessagePack implementation of behave.Serializer with a
// type registry for decoding payloads back into concrete values.
type Serializer struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewSerializer returns a Serializer with an empty registry.
func NewSerializer() *Serializer {
	return &Serializer{types: make(map[string]reflect.Type)}
}

// SerializerOption customizes a Serializer.
type SerializerOption func(*Serializer)

// WithRegistry seeds the type registry.
func WithRegistry(seed map[string]reflect.Type) SerializerOption {
	return func(ser *Serializer) {
		for name, rt := range seed {
			ser.types[name] = rt
		}
	}
}

// NewSerializerWithOptions returns a Serializer configured by opts.
func NewSerializerWithOptions(opts ...SerializerOption) *Serializer {
	ser := NewSerializer()
	for _, opt := range opts {
		opt(ser)
	}
	return ser
}

// structType resolves the concrete struct type of an example event,
// unwrapping a pointer if one was passed.
func structType(example any) reflect.Type {
	rt := reflect.TypeOf(example)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt
}

func typeName(event any) string {
	return structType(event).Name()
}

// Register maps eventType to the Go type of example.
func (ser *Serializer) Register(eventType string, example any) {
	ser.mu.Lock()
	defer ser.mu.Unlock()

	ser.types[eventType] = structType(example)
}

// RegisterAll registers each example under its struct name.
func (ser *Serializer) RegisterAll(examples ...any) {
	ser.mu.Lock()
	defer ser.mu.Unlock()

	for _, ex := range examples {
		rt := structType(ex)
		ser.types[rt.Name()] = rt
	}
}

// Lookup returns the Go type registered under eventType.
func (ser *Serializer) Lookup(eventType string) (reflect.Type, bool) {
	ser.mu.RLock()
	rt, ok := ser.types[eventType]
	ser.mu.RUnlock()
	return rt, ok
}

// RegisteredTypes returns every registered event type name.
func (ser *Serializer) RegisteredTypes() []string {
	ser.mu.RLock()
	defer ser.mu.RUnlock()

	names := make([]string, 0, len(ser.types))
	for name := range ser.types {
		names = append(names, name)
	}
	return names
}

// Count reports how many event types are registered.
func (ser *Serializer) Count() int {
	ser.mu.RLock()
	n := len(ser.types)
	ser.mu.RUnlock()
	return n
}

// Serialize encodes an event as MessagePack.
func (ser *Serializer) Serialize(event any) ([]byte, error) {
	if event == nil {
		return nil, serr("nil", "serialize", fmt.Errorf("event cannot be nil"))
	}

	b, err := msgpack.Marshal(event)
	if err != nil {
		return nil, serr(typeName(event), "serialize", err)
	}
	return b, nil
}

// Deserialize decodes MessagePack bytes back into an event value.
// Registered types come back as concrete values; anything else falls back
// to a map[string]any.
func (ser *Serializer) Deserialize(payload []byte, eventType string) (any, error) {
	if len(payload) == 0 {
		return nil, serr(eventType, "deserialize", fmt.Errorf("data cannot be empty"))
	}

	rt, ok := ser.Lookup(eventType)
	if !ok {
		var generic map[string]any
		if err := msgpack.Unmarshal(payload, &generic); err != nil {
			return nil, serr(eventType, "deserialize", err)
		}
		return generic, nil
	}

	target := reflect.New(rt)
	if err := msgpack.Unmarshal(payload, target.Interface()); err != nil {
		return nil, serr(eventType, "deserialize", err)
	}

	// Hand back the value, not the pointer.
	return target.Elem().Interface(), nil
}

// SerializationError reports a failed encode or decode.
type SerializationError struct {
	Err       error
	EventType string
	Operation string // either "serialize" or "deserialize"
}

func serr(eventType, operation string, err error) error {
	return &SerializationError{EventType: eventType, Operation: operation, Err: err}
}

func (se *SerializationError) Error() string {
	return fmt.Sprintf("behave/msgpack: failed to %s event %s: %v", se.Operation, se.EventType, se.Err)
}

// Unwrap returns the wrapped error.
func (se *SerializationError) Unwrap() error {
	return se.Err
}
