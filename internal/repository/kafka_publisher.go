package repository

import (
	"context"

	"Pattas/internal/domain/models"
)

// MessageProducer is the part of pkg/kafka.Producer the publishers need.
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaRunPublisher emits run lifecycle events keyed by run ID, so all
// events of one run land on the same partition in order.
type KafkaRunPublisher struct {
	producer MessageProducer
	topic    string
}

func NewKafkaRunPublisher(producer MessageProducer, topic string) *KafkaRunPublisher {
	return &KafkaRunPublisher{producer: producer, topic: topic}
}

func (p *KafkaRunPublisher) Publish(ctx context.Context, event models.RunEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(event.Run.ID), event)
}

// NoopRunPublisher is used when Kafka is disabled.
type NoopRunPublisher struct{}

func (NoopRunPublisher) Publish(context.Context, models.RunEvent) error { return nil }

// KafkaLogPublisher ships aggregated error logs from pkg/logger.
type KafkaLogPublisher struct {
	producer MessageProducer
}

func NewKafkaLogPublisher(producer MessageProducer) *KafkaLogPublisher {
	return &KafkaLogPublisher{producer: producer}
}

func (p *KafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}
