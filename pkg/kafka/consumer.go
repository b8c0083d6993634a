package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Consumer wraps a kafka reader for the intake and bridge loops.
type Consumer struct {
	reader *kafka.Reader
}

// Handler is the callback invoked for every fetched message.
type Handler func(ctx context.Context, key []byte, value []byte) error

// NewConsumer creates a reader. The groupID splits work between replicas of
// the same service instead of each replica re-processing every message.
func NewConsumer(brokers []string, topic string, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		}),
	}
}

// Start fetches messages until the context is cancelled. A handler error
// leaves the offset uncommitted so kafka redelivers the message; only a
// successful handler run commits.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	log.Printf("kafka consumer started. topic: %s, group: %s", c.reader.Config().Topic, c.reader.Config().GroupID)

	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("error fetching message: %v", err)
			time.Sleep(time.Second)
			continue
		}

		processCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = handler(processCtx, m.Key, m.Value)
		cancel()

		if err != nil {
			log.Printf("processing failed (offset %d): %v", m.Offset, err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("failed to commit offset: %v", err)
		}
	}
}

// Close disconnects from the broker.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
