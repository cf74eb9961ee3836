package repository

import (
	"context"

	"JewelForecast/internal/domain/models"
	"JewelForecast/internal/domain/repository"
	pkgkafka "JewelForecast/pkg/kafka"
)

// KafkaModelEventPublisher announces new artifacts keyed by model type.
type KafkaModelEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ repository.ModelEventPublisher = (*KafkaModelEventPublisher)(nil)

func NewKafkaModelEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaModelEventPublisher {
	return &KafkaModelEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaModelEventPublisher) Publish(ctx context.Context, ev models.ModelEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.ModelType), ev)
}

func (p *KafkaModelEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopModelEventPublisher is used when Kafka is disabled.
type NoopModelEventPublisher struct{}

func (NoopModelEventPublisher) Publish(context.Context, models.ModelEvent) error { return nil }
func (NoopModelEventPublisher) Close() error                                     { return nil }
