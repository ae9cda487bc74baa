package protobuf

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-behave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Serializer must be pluggable into a Journal.
var _ behave.Serializer = (*Serializer)(nil)

// PlainEvent is an ordinary struct that does NOT implement proto.Message.
type PlainEvent struct {
	ID string
}

// payload asserts that v carries an M, accepting both the value form that
// Deserialize returns and the pointer form the wrappers are built with.
func payload[M any](t *testing.T, v any) *M {
	t.Helper()
	switch m := v.(type) {
	case M:
		return &m
	case *M:
		return m
	}
	t.Fatalf("payload is %T, want %T", v, new(M))
	return nil
}

// reencode runs one serialize/deserialize cycle through ser.
func reencode[M any](t *testing.T, ser *Serializer, typeName string, msg proto.Message) *M {
	t.Helper()
	data, err := ser.Serialize(msg)
	require.NoError(t, err)

	out, err := ser.Deserialize(data, typeName)
	require.NoError(t, err)
	return payload[M](t, out)
}

// requireFailure asserts err is a SerializationError for the given operation
// wrapping the given sentinel, and returns it for further checks.
func requireFailure(t *testing.T, err error, op string, sentinel error) *SerializationError {
	t.Helper()
	require.Error(t, err)

	var serErr *SerializationError
	require.ErrorAs(t, err, &serErr)
	assert.Equal(t, op, serErr.Operation)
	assert.ErrorIs(t, serErr, sentinel)
	return serErr
}

func TestConstructors(t *testing.T) {
	t.Run("empty registry", func(t *testing.T) {
		ser := NewSerializer()
		assert.NotNil(t, ser)
		assert.Zero(t, ser.Count())
		assert.Empty(t, ser.RegisteredTypes())
	})

	t.Run("seeded registry", func(t *testing.T) {
		ser := NewSerializerWithOptions(WithRegistry(map[string]reflect.Type{
			"StringValue": reflect.TypeOf(wrapperspb.StringValue{}),
		}))

		assert.Equal(t, 1, ser.Count())
		_, ok := ser.Lookup("StringValue")
		assert.True(t, ok)
	})
}

func TestRegistration(t *testing.T) {
	t.Run("stores the value type", func(t *testing.T) {
		ser := NewSerializer()
		require.NoError(t, ser.Register("StringValue", &wrapperspb.StringValue{}))

		typ, ok := ser.Lookup("StringValue")
		require.True(t, ok)
		assert.Equal(t, reflect.TypeOf(wrapperspb.StringValue{}), typ)
	})

	t.Run("same name replaces the earlier type", func(t *testing.T) {
		ser := NewSerializer()
		require.NoError(t, ser.Register("Event", &wrapperspb.StringValue{}))
		require.NoError(t, ser.Register("Event", &wrapperspb.Int32Value{}))

		typ, ok := ser.Lookup("Event")
		require.True(t, ok)
		assert.Equal(t, reflect.TypeOf(wrapperspb.Int32Value{}), typ)
	})

	t.Run("refuses non message types", func(t *testing.T) {
		ser := NewSerializer()
		err := ser.Register("PlainEvent", PlainEvent{})
		requireFailure(t, err, "register", ErrNotProtoMessage)
		assert.Zero(t, ser.Count())
	})

	t.Run("RegisterAll infers names from types", func(t *testing.T) {
		ser := NewSerializer()
		require.NoError(t, ser.RegisterAll(&wrapperspb.StringValue{}, &wrapperspb.Int32Value{}))

		assert.Equal(t, 2, ser.Count())
		for _, name := range []string{"StringValue", "Int32Value"} {
			_, ok := ser.Lookup(name)
			assert.True(t, ok, "missing %s", name)
		}
	})

	t.Run("RegisterAll stops at the first bad event", func(t *testing.T) {
		ser := NewSerializer()
		err := ser.RegisterAll(&wrapperspb.StringValue{}, PlainEvent{})

		require.Error(t, err)
		assert.Equal(t, 1, ser.Count())
	})

	t.Run("Must variants panic only on bad events", func(t *testing.T) {
		ser := NewSerializer()
		assert.NotPanics(t, func() {
			ser.MustRegister("StringValue", &wrapperspb.StringValue{})
			ser.MustRegisterAll(&wrapperspb.BoolValue{}, &wrapperspb.BytesValue{})
		})
		assert.Equal(t, 3, ser.Count())

		assert.Panics(t, func() { ser.MustRegister("PlainEvent", PlainEvent{}) })
		assert.Panics(t, func() { ser.MustRegisterAll(&wrapperspb.Int32Value{}, PlainEvent{}) })
	})

	t.Run("Lookup misses unregistered names", func(t *testing.T) {
		_, ok := NewSerializer().Lookup("NotRegistered")
		assert.False(t, ok)
	})

	t.Run("RegisteredTypes lists every name", func(t *testing.T) {
		ser := NewSerializer()
		require.NoError(t, ser.RegisterAll(&wrapperspb.StringValue{}, &wrapperspb.Int32Value{}))

		assert.ElementsMatch(t, []string{"StringValue", "Int32Value"}, ser.RegisteredTypes())
	})
}

func TestSerialize(t *testing.T) {
	t.Run("wrapper payloads", func(t *testing.T) {
		events := map[string]proto.Message{
			"string": wrapperspb.String("ledger-123"),
			"int32":  wrapperspb.Int32(42),
			"double": wrapperspb.Double(3.14159),
			"bool":   wrapperspb.Bool(true),
		}
		ser := NewSerializer()

		for name, event := range events {
			t.Run(name, func(t *testing.T) {
				data, err := ser.Serialize(event)
				require.NoError(t, err)
				assert.NotEmpty(t, data)
			})
		}
	})

	t.Run("nil event", func(t *testing.T) {
		_, err := NewSerializer().Serialize(nil)
		serErr := requireFailure(t, err, "serialize", ErrNilEvent)
		assert.Equal(t, "nil", serErr.EventType)
	})

	t.Run("plain struct", func(t *testing.T) {
		_, err := NewSerializer().Serialize(PlainEvent{ID: "123"})
		requireFailure(t, err, "serialize", ErrNotProtoMessage)
	})
}

func TestDeserialize(t *testing.T) {
	t.Run("decodes into the registered type", func(t *testing.T) {
		ser := NewSerializer()
		ser.MustRegister("StringValue", &wrapperspb.StringValue{})

		got := reencode[wrapperspb.StringValue](t, ser, "StringValue", wrapperspb.String("ledger-123"))
		assert.Equal(t, "ledger-123", got.GetValue())
	})

	t.Run("floating point survives within delta", func(t *testing.T) {
		ser := NewSerializer()
		ser.MustRegister("DoubleValue", &wrapperspb.DoubleValue{})

		got := reencode[wrapperspb.DoubleValue](t, ser, "DoubleValue", wrapperspb.Double(3.14159))
		assert.InDelta(t, 3.14159, got.GetValue(), 0.00001)
	})

	t.Run("unregistered name", func(t *testing.T) {
		ser := NewSerializer()
		data, err := ser.Serialize(wrapperspb.String("ledger-123"))
		require.NoError(t, err)

		_, err = ser.Deserialize(data, "UnregisteredType")
		serErr := requireFailure(t, err, "deserialize", ErrTypeNotRegistered)
		assert.Equal(t, "UnregisteredType", serErr.EventType)
	})

	t.Run("empty slice decodes to the zero message", func(t *testing.T) {
		ser := NewSerializer()
		ser.MustRegister("StringValue", &wrapperspb.StringValue{})

		out, err := ser.Deserialize([]byte{}, "StringValue")
		require.NoError(t, err)
		assert.Equal(t, "", payload[wrapperspb.StringValue](t, out).GetValue())
	})

	t.Run("nil slice is refused", func(t *testing.T) {
		ser := NewSerializer()
		ser.MustRegister("StringValue", &wrapperspb.StringValue{})

		_, err := ser.Deserialize(nil, "StringValue")
		requireFailure(t, err, "deserialize", ErrEmptyData)
	})
}

func TestRoundTripValues(t *testing.T) {
	ser := NewSerializer()
	ser.MustRegisterAll(
		&wrapperspb.StringValue{},
		&wrapperspb.Int32Value{},
		&wrapperspb.Int64Value{},
		&wrapperspb.DoubleValue{},
		&wrapperspb.BytesValue{},
	)

	t.Run("strings", func(t *testing.T) {
		for _, val := range []string{"ledger-1", "ledger-2", "", "unicode: 你好世界"} {
			got := reencode[wrapperspb.StringValue](t, ser, "StringValue", wrapperspb.String(val))
			assert.Equal(t, val, got.GetValue())
		}
	})

	t.Run("int32 boundaries", func(t *testing.T) {
		for _, val := range []int32{0, 1, -1, 42, -42, math.MaxInt32, math.MinInt32} {
			got := reencode[wrapperspb.Int32Value](t, ser, "Int32Value", wrapperspb.Int32(val))
			assert.Equal(t, val, got.GetValue())
		}
	})

	t.Run("int64 boundaries", func(t *testing.T) {
		for _, val := range []int64{0, 1, -1, math.MaxInt64, math.MinInt64} {
			got := reencode[wrapperspb.Int64Value](t, ser, "Int64Value", wrapperspb.Int64(val))
			assert.Equal(t, val, got.GetValue())
		}
	})

	t.Run("doubles", func(t *testing.T) {
		for _, val := range []float64{0.0, 1.0, -1.0, 3.14159, 2.71828} {
			got := reencode[wrapperspb.DoubleValue](t, ser, "DoubleValue", wrapperspb.Double(val))
			assert.InDelta(t, val, got.GetValue(), 0.00001)
		}
	})

	t.Run("bytes", func(t *testing.T) {
		for _, val := range [][]byte{{0x00}, {0x01, 0x02, 0x03}, []byte("hello world")} {
			got := reencode[wrapperspb.BytesValue](t, ser, "BytesValue", wrapperspb.Bytes(val))
			assert.Equal(t, val, got.GetValue())
		}
	})

	t.Run("empty bytes come back empty", func(t *testing.T) {
		got := reencode[wrapperspb.BytesValue](t, ser, "BytesValue", wrapperspb.Bytes([]byte{}))
		assert.Empty(t, got.GetValue())
	})
}

func TestDeserializedValueIsCloneable(t *testing.T) {
	ser := NewSerializer()
	ser.MustRegister("StringValue", &wrapperspb.StringValue{})

	got := reencode[wrapperspb.StringValue](t, ser, "StringValue", wrapperspb.String("test-value"))

	cloned := proto.Clone(got).(*wrapperspb.StringValue)
	assert.Equal(t, "test-value", cloned.GetValue())
}

func TestSerializationError(t *testing.T) {
	t.Run("message names the operation and type", func(t *testing.T) {
		with := newError("serialize", "StringValue", ErrNilEvent).Error()
		for _, want := range []string{"behave/protobuf", "StringValue", "serialize"} {
			assert.Contains(t, with, want)
		}

		without := newError("deserialize", "StringValue", nil).Error()
		assert.Contains(t, without, "StringValue")
		assert.Contains(t, without, "deserialize")
	})

	t.Run("Unwrap exposes the cause", func(t *testing.T) {
		cause := errors.New("test cause")
		assert.Equal(t, cause, newError("test", "Test", cause).Unwrap())
	})

	t.Run("Is matches only the wrapped sentinel", func(t *testing.T) {
		err := newError("serialize", "Test", ErrNilEvent)
		assert.ErrorIs(t, err, ErrNilEvent)
		assert.NotErrorIs(t, err, ErrEmptyData)
	})
}

func TestConcurrentAccess(t *testing.T) {
	ser := NewSerializer()
	ser.MustRegister("StringValue", &wrapperspb.StringValue{})

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = ser.Register("Event", &wrapperspb.StringValue{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			ser.Lookup("Event")
			ser.Count()
			ser.RegisteredTypes()
		}
	}()
	go func() {
		defer wg.Done()
		event := wrapperspb.String("test")
		for i := 0; i < 100; i++ {
			data, _ := ser.Serialize(event)
			if len(data) > 0 {
				_, _ = ser.Deserialize(data, "StringValue")
			}
		}
	}()

	wg.Wait()
}

func BenchmarkSerialize(b *testing.B) {
	ser := NewSerializer()
	event := wrapperspb.String("ledger-123")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ser.Serialize(event)
	}
}

func BenchmarkDeserialize(b *testing.B) {
	ser := NewSerializer()
	ser.MustRegister("StringValue", &wrapperspb.StringValue{})
	data, _ := ser.Serialize(wrapperspb.String("ledger-123"))

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ser.Deserialize(data, "StringValue")
	}
}

// storedEvent is a decided event as persisted by a journal.
type storedEvent struct {
	StreamID string
	Type     string
	Data     []byte
	Version  int64
}

// eventLog is a minimal in-memory journal stand-in used to exercise the
// serializer the way an adapter would.
type eventLog struct {
	mu       sync.Mutex
	byStream map[string][]storedEvent
	ser      *Serializer
}

func newEventLog(ser *Serializer) *eventLog {
	return &eventLog{byStream: make(map[string][]storedEvent), ser: ser}
}

func (l *eventLog) Append(streamID, eventType string, event proto.Message) error {
	data, err := l.ser.Serialize(event)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.byStream[streamID]
	l.byStream[streamID] = append(seq, storedEvent{
		StreamID: streamID,
		Type:     eventType,
		Data:     data,
		Version:  int64(len(seq)) + 1,
	})
	return nil
}

func (l *eventLog) Load(streamID string) []storedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]storedEvent(nil), l.byStream[streamID]...)
}

func (l *eventLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, seq := range l.byStream {
		n += len(seq)
	}
	return n
}

func (l *eventLog) Deserialize(event storedEvent) (any, error) {
	return l.ser.Deserialize(event.Data, event.Type)
}

// ledgerEventTypes maps the event names used in the e2e tests to their
// protobuf payload types.
var ledgerEventTypes = map[string]proto.Message{
	"StringValue":    &wrapperspb.StringValue{},
	"Int32Value":     &wrapperspb.Int32Value{},
	"Int64Value":     &wrapperspb.Int64Value{},
	"DoubleValue":    &wrapperspb.DoubleValue{},
	"BoolValue":      &wrapperspb.BoolValue{},
	"BytesValue":     &wrapperspb.BytesValue{},
	"LedgerOpened":   &wrapperspb.StringValue{},
	"FundsDeposited": &wrapperspb.DoubleValue{},
	"FundsWithdrawn": &wrapperspb.DoubleValue{},
	"LedgerClosed":   &wrapperspb.BoolValue{},
	"NoteAttached":   &wrapperspb.StringValue{},
	"BlobAttached":   &wrapperspb.BytesValue{},
}

func newRegisteredSerializer(t *testing.T, eventTypes ...string) *Serializer {
	t.Helper()
	ser := NewSerializer()
	for _, name := range eventTypes {
		msg, ok := ledgerEventTypes[name]
		require.True(t, ok, "unknown event type: %s", name)
		require.NoError(t, ser.Register(name, msg))
	}
	return ser
}

func newLedgerLog(t *testing.T, eventTypes ...string) (*Serializer, *eventLog) {
	t.Helper()
	ser := newRegisteredSerializer(t, eventTypes...)
	return ser, newEventLog(ser)
}

// deserializeAs decodes an event and asserts its payload type.
func deserializeAs[M any](t *testing.T, log *eventLog, event storedEvent) *M {
	t.Helper()
	result, err := log.Deserialize(event)
	require.NoError(t, err)
	return payload[M](t, result)
}

func TestE2E_LedgerFlow(t *testing.T) {
	t.Run("ledger lifecycle with protobuf payloads", func(t *testing.T) {
		_, log := newLedgerLog(t, "LedgerOpened", "FundsDeposited", "FundsWithdrawn", "LedgerClosed")
		streamID := "Ledger-acc-001"

		require.NoError(t, log.Append(streamID, "LedgerOpened", wrapperspb.String("holder-abc")))
		require.NoError(t, log.Append(streamID, "FundsDeposited", wrapperspb.Double(100.00)))
		require.NoError(t, log.Append(streamID, "FundsDeposited", wrapperspb.Double(50.00)))
		require.NoError(t, log.Append(streamID, "FundsWithdrawn", wrapperspb.Double(25.00)))
		require.NoError(t, log.Append(streamID, "LedgerClosed", wrapperspb.Bool(true)))

		events := log.Load(streamID)
		require.Len(t, events, 5)

		assert.Equal(t, "holder-abc", deserializeAs[wrapperspb.StringValue](t, log, events[0]).GetValue())
		assert.InDelta(t, 100.00, deserializeAs[wrapperspb.DoubleValue](t, log, events[1]).GetValue(), 0.001)
		assert.True(t, deserializeAs[wrapperspb.BoolValue](t, log, events[4]).GetValue())
	})

	t.Run("folding balance from replayed events", func(t *testing.T) {
		_, log := newLedgerLog(t, "FundsDeposited", "FundsWithdrawn")
		streamID := "Ledger-acc-002"

		ops := []struct {
			eventType string
			amount    float64
		}{
			{"FundsDeposited", 100.00}, {"FundsDeposited", 50.00}, {"FundsWithdrawn", 25.00},
			{"FundsDeposited", 75.00}, {"FundsWithdrawn", 10.00},
		}
		for _, op := range ops {
			require.NoError(t, log.Append(streamID, op.eventType, wrapperspb.Double(op.amount)))
		}

		balance := 0.0
		for _, event := range log.Load(streamID) {
			amount := deserializeAs[wrapperspb.DoubleValue](t, log, event).GetValue()
			if event.Type == "FundsWithdrawn" {
				amount = -amount
			}
			balance += amount
		}
		assert.InDelta(t, 190.00, balance, 0.001)
	})

	t.Run("multiple streams with concurrent appends", func(t *testing.T) {
		_, log := newLedgerLog(t, "LedgerOpened", "FundsDeposited", "LedgerClosed")

		var wg sync.WaitGroup
		accountCount, eventsPerAccount := 10, 5

		for i := 0; i < accountCount; i++ {
			wg.Add(1)
			go func(accID int) {
				defer wg.Done()
				streamID := fmt.Sprintf("Ledger-acc-%d", accID)
				_ = log.Append(streamID, "LedgerOpened", wrapperspb.String(fmt.Sprintf("holder-%d", accID)))
				for j := 0; j < eventsPerAccount-2; j++ {
					_ = log.Append(streamID, "FundsDeposited", wrapperspb.Double(float64(j)))
				}
				_ = log.Append(streamID, "LedgerClosed", wrapperspb.Bool(true))
			}(i)
		}
		wg.Wait()

		assert.Equal(t, accountCount*eventsPerAccount, log.total())
		for i := 0; i < accountCount; i++ {
			events := log.Load(fmt.Sprintf("Ledger-acc-%d", i))
			assert.Len(t, events, eventsPerAccount)
			assert.Contains(t, deserializeAs[wrapperspb.StringValue](t, log, events[0]).GetValue(), "holder-")
			assert.True(t, deserializeAs[wrapperspb.BoolValue](t, log, events[len(events)-1]).GetValue())
		}
	})

	t.Run("append and decode failures carry sentinels", func(t *testing.T) {
		ser, log := newLedgerLog(t, "NoteAttached")

		require.NoError(t, log.Append("Ledger-acc-003", "NoteAttached", wrapperspb.String("note")))
		require.ErrorIs(t, log.Append("Ledger-acc-003", "NoteAttached", nil), ErrNilEvent)

		_, err := ser.Serialize(PlainEvent{ID: "test"})
		require.ErrorIs(t, err, ErrNotProtoMessage)

		unknown := storedEvent{Type: "UnknownEvent", Data: []byte{0x0a, 0x05, 0x68, 0x65, 0x6c, 0x6c, 0x6f}}
		_, err = log.Deserialize(unknown)
		require.ErrorIs(t, err, ErrTypeNotRegistered)
	})

	t.Run("megabyte blob payloads survive", func(t *testing.T) {
		_, log := newLedgerLog(t, "BlobAttached")

		largeData := make([]byte, 1024*1024)
		for i := range largeData {
			largeData[i] = byte(i % 256)
		}

		require.NoError(t, log.Append("Ledger-blob", "BlobAttached", wrapperspb.Bytes(largeData)))
		events := log.Load("Ledger-blob")
		require.Len(t, events, 1)

		assert.Equal(t, largeData, deserializeAs[wrapperspb.BytesValue](t, log, events[0]).GetValue())
	})

	t.Run("unicode note payloads", func(t *testing.T) {
		ser, log := newLedgerLog(t, "NoteAttached", "BlobAttached")

		samples := []string{
			"Hello, 世界!", "مرحبا بالعالم", "Привет мир", "こんにちは世界",
			"Special chars: <>&\"'\\", "Line\nBreaks\tAnd\rCarriage",
		}

		for i, str := range samples {
			streamID := fmt.Sprintf("Ledger-unicode-%d", i)
			require.NoError(t, log.Append(streamID, "NoteAttached", wrapperspb.String(str)))
			events := log.Load(streamID)
			assert.Equal(t, str, deserializeAs[wrapperspb.StringValue](t, log, events[0]).GetValue())
		}

		t.Run("invalid UTF-8 in a StringValue is refused", func(t *testing.T) {
			_, err := ser.Serialize(wrapperspb.String(string([]byte{0xc0, 0x80})))
			assert.Error(t, err)
		})

		t.Run("arbitrary bytes pass through BytesValue", func(t *testing.T) {
			binaryData := []byte{0x00, 0xc0, 0x80, 0xff, 0xfe, 0x00, 0x01}
			require.NoError(t, log.Append("Ledger-binary", "BlobAttached", wrapperspb.Bytes(binaryData)))
			events := log.Load("Ledger-binary")
			assert.Equal(t, binaryData, deserializeAs[wrapperspb.BytesValue](t, log, events[0]).GetValue())
		})
	})
}

func TestE2E_RegistryIsolation(t *testing.T) {
	t.Run("registries are isolated per instance", func(t *testing.T) {
		serA := newRegisteredSerializer(t, "StringValue")
		serB := NewSerializer()
		require.NoError(t, serB.Register("EventB", &wrapperspb.Int32Value{}))

		lookups := []struct {
			ser  *Serializer
			name string
			want bool
		}{
			{serA, "StringValue", true},
			{serA, "EventB", false},
			{serB, "StringValue", false},
			{serB, "EventB", true},
		}
		for _, l := range lookups {
			_, ok := l.ser.Lookup(l.name)
			assert.Equal(t, l.want, ok, "lookup %s", l.name)
		}
	})

	t.Run("seeded registry deserializes immediately", func(t *testing.T) {
		ser := NewSerializerWithOptions(WithRegistry(map[string]reflect.Type{
			"TypeA": reflect.TypeOf(wrapperspb.StringValue{}),
			"TypeB": reflect.TypeOf(wrapperspb.Int32Value{}),
			"TypeC": reflect.TypeOf(wrapperspb.DoubleValue{}),
		}))

		assert.Equal(t, 3, ser.Count())
		for _, typeName := range []string{"TypeA", "TypeB", "TypeC"} {
			_, err := ser.Deserialize([]byte{}, typeName)
			require.NoError(t, err)
		}
	})
}

func TestE2E_Throughput(t *testing.T) {
	t.Run("encoding overhead stays small", func(t *testing.T) {
		ser := NewSerializer()
		// Allowed size is payload plus a few framing bytes.
		payloads := map[string]struct {
			value string
			limit int
		}{
			"tiny":   {"a", 10},
			"small":  {"hello world", 20},
			"medium": {strings.Repeat("x", 100), 110},
			"large":  {strings.Repeat("x", 1000), 1010},
		}

		for name, tc := range payloads {
			t.Run(name, func(t *testing.T) {
				data, err := ser.Serialize(wrapperspb.String(tc.value))
				require.NoError(t, err)
				assert.LessOrEqual(t, len(data), tc.limit)
			})
		}
	})

	t.Run("batch processing stays fast", func(t *testing.T) {
		ser := newRegisteredSerializer(t, "NoteAttached")
		const batchSize = 10000

		encoded := make([][]byte, batchSize)
		t0 := time.Now()
		for i := 0; i < batchSize; i++ {
			encoded[i], _ = ser.Serialize(wrapperspb.String(fmt.Sprintf("note-%d", i)))
		}
		encodeTime := time.Since(t0)

		t0 = time.Now()
		for _, data := range encoded {
			_, _ = ser.Deserialize(data, "NoteAttached")
		}
		decodeTime := time.Since(t0)

		assert.Less(t, encodeTime, 10*time.Second)
		assert.Less(t, decodeTime, 10*time.Second)
	})
}
