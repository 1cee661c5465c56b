package queue

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/acme/outbound-dialer/internal/config"
)

// Kafka holds the broker settings for the call-event stream.
type Kafka struct {
	cfg    config.KafkaConfig
	dialer *kafka.Dialer
}

// NewKafka validates the broker list and returns the stream helper.
func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka: events topic is empty")
	}
	return &Kafka{
		cfg:    cfg,
		dialer: &kafka.Dialer{Timeout: 10 * time.Second, ClientID: cfg.ClientID},
	}, nil
}

// EventsWriter returns a synchronous writer for the events topic. Messages
// are partitioned by key hash so every event of one lead lands on the same
// partition.
func (k *Kafka) EventsWriter() *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(k.cfg.Brokers...),
		Topic:        k.cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// EventsReader returns a consumer-group reader for the events topic.
// Offsets are committed explicitly by the caller.
func (k *Kafka) EventsReader() *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.cfg.Brokers,
		Topic:          k.cfg.EventsTopic,
		GroupID:        k.cfg.ConsumerGroupID,
		Dialer:         k.dialer,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: k.cfg.CommitInterval,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
	})
}

// Ping dials the first broker.
func (k *Kafka) Ping(ctx context.Context) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial: %w", err)
	}
	return conn.Close()
}

// EnsureEventsTopic creates the events topic on the controller when it is
// missing.
func (k *Kafka) EnsureEventsTopic(ctx context.Context, replicationFactor int) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(k.cfg.EventsTopic)
	if err == nil && len(partitions) > 0 {
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: find controller: %w", err)
	}
	addr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	ctrl, err := k.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("kafka: dial controller: %w", err)
	}
	defer ctrl.Close()

	count := k.cfg.Partitions
	if count <= 0 {
		count = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	if err := ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             k.cfg.EventsTopic,
		NumPartitions:     count,
		ReplicationFactor: replicationFactor,
	}); err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", k.cfg.EventsTopic, err)
	}
	return nil
}
