package repository

import (
	"context"
	"time"

	"RateGate/internal/domain/models"
	pkgkafka "RateGate/pkg/kafka"

	"github.com/google/uuid"
)

type messagePublisher interface {
	Publish(ctx context.Context, topic string, msg pkgkafka.Message) error
	Close() error
}

// KafkaEventPublisher publishes limit changes keyed by user id.
type KafkaEventPublisher struct {
	producer messagePublisher
	topic    string
}

func NewKafkaEventPublisher(p messagePublisher, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, topic: topic}
}

// PublishLimitChanged fills in a missing ID and timestamp before sending.
func (p *KafkaEventPublisher) PublishLimitChanged(ctx context.Context, ev *models.LimitChangedEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.ChangedAt.IsZero() {
		ev.ChangedAt = time.Now().UTC()
	}
	return p.producer.Publish(ctx, p.topic, pkgkafka.Message{
		Key:     []byte(ev.UserID),
		Value:   ev,
		Headers: map[string]string{pkgkafka.HeaderEventID: ev.ID},
	})
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

// NoopEventPublisher drops events. Used when Kafka is disabled.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishLimitChanged(context.Context, *models.LimitChangedEvent) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }
