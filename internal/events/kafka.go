package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"credit-ledger/internal/domain"
)

// KafkaPublisher writes ledger events to a topic, keyed by account id so one
// account's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates an asynchronous publisher; delivery failures are
// logged from the writer's completion callback.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{logger: logger}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.logger.Error("Failed to publish ledger events", "count", len(messages), "error", err)
			}
		},
	}
	return p
}

// Publish enqueues the event.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.LedgerEvent) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encode(event *domain.LedgerEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode ledger event %d: %w", event.ID, err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.AccountID, 10)),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}, nil
}
