package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/outbound-dialer/internal/domain"
)

// Publisher emits call events.
type Publisher interface {
	Publish(ctx context.Context, event domain.CallEvent) error
	Close() error
}

// EventPublisher publishes call events to Kafka keyed by lead id, so a
// lead's events stay ordered within a partition.
type EventPublisher struct {
	writer *kafka.Writer
}

// NewEventPublisher constructs a publisher for the events topic.
func NewEventPublisher(k *Kafka) *EventPublisher {
	return &EventPublisher{writer: k.EventsWriter()}
}

// Publish emits an event message to Kafka.
func (p *EventPublisher) Publish(ctx context.Context, event domain.CallEvent) error {
	value, err := json.Marshal(NewEventMessage(event))
	if err != nil {
		return fmt.Errorf("event publisher: marshal message: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(event.LeadID),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("event publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. It is used when no brokers are configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, domain.CallEvent) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
