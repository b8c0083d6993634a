package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	skafka "github.com/segmentio/kafka-go"
)

// Envelope is the wire format for every group event: the event name plus its
// payload. Consumers that only route on the event name can read the message
// header instead of unmarshalling the body.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Writer defines the subset of segmentio kafka.Writer we need. This makes the producer testable.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Publisher is the interface the engine uses to publish group events.
type Publisher interface {
	Publish(ctx context.Context, key string, evt Envelope) error
	Close() error
}

// Producer writes envelopes to the group events topic, keyed by group ID so
// one group's events stay ordered within a partition.
type Producer struct {
	writer Writer
}

// NewProducer creates a real Producer that writes to the provided broker/topic.
func NewProducer(brokerURL, topic string) *Producer {
	w := &skafka.Writer{
		Addr:     skafka.TCP(brokerURL),
		Topic:    topic,
		Balancer: &skafka.LeastBytes{},
	}
	return &Producer{writer: w}
}

// NewProducerWithWriter allows injecting a test writer.
func NewProducerWithWriter(w Writer) *Producer {
	return &Producer{writer: w}
}

// Publish marshals the envelope and writes one message. The event name is
// duplicated into a header so bridge consumers can filter without decoding
// the body.
func (p *Producer) Publish(ctx context.Context, key string, evt Envelope) error {
	if evt.Event == "" {
		return fmt.Errorf("envelope has no event name (key %s)", key)
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", evt.Event, err)
	}
	msg := skafka.Message{
		Key:   []byte(key),
		Value: b,
		Headers: []skafka.Header{
			{Key: "event", Value: []byte(evt.Event)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s for %s: %w", evt.Event, key, err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
