// Package kafka publishes events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/abgdnv/shelfstock/pkg/messaging"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes events to a single topic. Keyed events are hashed to a partition by key,
// so all events of one product stay in order.
type Producer struct {
	w messageWriter
}

var _ messaging.Publisher = (*Producer)(nil)

// NewProducer creates a synchronous producer that waits for all in-sync replicas.
func NewProducer(brokers []string, topic string, writeTimeout time.Duration) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			WriteTimeout:           writeTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, event messaging.Event) error {
	data, err := event.Payload()
	if err != nil {
		return fmt.Errorf("%w: %w", messaging.ErrMalformedEvent, err)
	}
	msg := kafka.Message{
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(event.Subject())},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}
	if k, ok := event.(messaging.Keyed); ok {
		msg.Key = []byte(k.Key())
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Subject(), err)
	}
	return nil
}

// Close flushes pending writes and releases the connections.
func (p *Producer) Close() error {
	return p.w.Close()
}
