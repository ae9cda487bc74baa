// Package kafka delivers committed-event notifications to Kafka topics
// via github.com/segmentio/kafka-go. Destinations take the form
// "kafka:topic-name"; the topic is everything after the colon.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/AshkanYarmoradi/go-behave"
)

// Publisher writes notifications to Kafka, lazily opening one writer per
// topic and reusing it for the lifetime of the publisher.
type Publisher struct {
	mu      sync.RWMutex
	writers map[string]*kafkago.Writer

	brokers      []string
	balancer     kafkago.Balancer
	transport    kafkago.RoundTripper
	batchTimeout time.Duration
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithBrokers overrides the broker list.
func WithBrokers(brokers ...string) Option {
	return func(k *Publisher) {
		k.brokers = brokers
	}
}

// WithBalancer picks the partitioning strategy.
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(k *Publisher) {
		k.balancer = balancer
	}
}

// WithBatchTimeout bounds how long a writer buffers before flushing.
func WithBatchTimeout(d time.Duration) Option {
	return func(k *Publisher) {
		k.batchTimeout = d
	}
}

// WithTransport installs a custom transport, typically for TLS or SASL.
func WithTransport(transport kafkago.RoundTripper) Option {
	return func(k *Publisher) {
		k.transport = transport
	}
}

// New builds a Publisher. Unset options fall back to a local broker,
// least-bytes balancing, and a 10ms batch timeout.
func New(opts ...Option) *Publisher {
	k := &Publisher{writers: make(map[string]*kafkago.Writer)}
	for _, opt := range opts {
		opt(k)
	}
	if len(k.brokers) == 0 {
		k.brokers = []string{"localhost:9092"}
	}
	if k.balancer == nil {
		k.balancer = &kafkago.LeastBytes{}
	}
	if k.batchTimeout == 0 {
		k.batchTimeout = 10 * time.Millisecond
	}
	return k
}

// Destination names the prefix this publisher claims in routes.
func (k *Publisher) Destination() string {
	return "kafka"
}

// Publish writes notifications to the Kafka topic named in each notification's
// destination. Messages are keyed by aggregate ID, so all events of one
// aggregate land on the same partition in order. All topics are attempted even
// if some fail; errors are collected and returned as a joined error.
func (k *Publisher) Publish(ctx context.Context, notes []*behave.Notification) error {
	var errs []error

	byTopic := make(map[string][]kafkago.Message)
	for _, note := range notes {
		topic := topicOf(note.Destination)
		if topic == "" {
			errs = append(errs, fmt.Errorf("kafka: invalid destination %q: missing topic", note.Destination))
			continue
		}
		byTopic[topic] = append(byTopic[topic], toMessage(note))
	}

	for topic, batch := range byTopic {
		if err := k.writerFor(topic).WriteMessages(ctx, batch...); err != nil {
			errs = append(errs, fmt.Errorf("kafka: write to topic %s: %w", topic, err))
		}
	}

	return errors.Join(errs...)
}

// Close closes all writers opened so far.
func (k *Publisher) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	for topic, w := range k.writers {
		if err := w.Close(); err != nil {
			return err
		}
		delete(k.writers, topic)
	}
	return nil
}

// writerFor returns the cached writer for topic, creating it on first use.
func (k *Publisher) writerFor(topic string) *kafkago.Writer {
	k.mu.RLock()
	w, ok := k.writers[topic]
	k.mu.RUnlock()
	if ok {
		return w
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	// Re-check: another goroutine may have won the race for this topic.
	if w, ok := k.writers[topic]; ok {
		return w
	}
	w = k.newWriter(topic)
	k.writers[topic] = w
	return w
}

func (k *Publisher) newWriter(topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(k.brokers...),
		Topic:                  topic,
		Balancer:               k.balancer,
		BatchTimeout:           k.batchTimeout,
		Transport:              k.transport,
		AllowAutoTopicCreation: true,
	}
}

// toMessage converts one notification into a Kafka message, carrying its
// headers through.
func toMessage(note *behave.Notification) kafkago.Message {
	msg := kafkago.Message{Key: []byte(note.AggregateID), Value: note.Payload}
	for name, val := range note.Headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: name, Value: []byte(val)})
	}
	return msg
}

// topicOf strips the "kafka:" prefix from a destination. Destinations for
// other publishers, or with an empty topic, yield "".
func topicOf(destination string) string {
	topic, ok := strings.CutPrefix(destination, "kafka:")
	if !ok {
		return ""
	}
	return topic
}

var _ behave.Publisher = (*Publisher)(nil)
