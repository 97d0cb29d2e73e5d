package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits orchestration outcomes and platform notifications.
type Publisher struct {
	outcomes      messageWriter
	notifications messageWriter
}

// NewPublisher constructs writers for the configured outcome and notification topics.
func NewPublisher(k *Kafka, outcomeTopic, notificationTopic string) *Publisher {
	return &Publisher{
		outcomes:      k.NewWriter(outcomeTopic),
		notifications: k.NewWriter(notificationTopic),
	}
}

// PublishOutcome writes an outcome event keyed by call id.
func (p *Publisher) PublishOutcome(ctx context.Context, msg OutcomeMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publisher: marshal outcome: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(msg.CallID),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.outcomes.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("publisher: write outcome: %w", err)
	}
	return nil
}

// PublishNotification forwards a platform notification keyed by call id.
func (p *Publisher) PublishNotification(ctx context.Context, msg NotificationMessage) error {
	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage("null")
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("publisher: marshal notification: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(msg.CallID),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.notifications.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("publisher: write notification: %w", err)
	}
	return nil
}

// Close closes both writers.
func (p *Publisher) Close() error {
	return errors.Join(p.outcomes.Close(), p.notifications.Close())
}
