// Package kafka provides a Kafka ingress. Each record on the updates topic
// carries one JSON-encoded Telegram update, typically produced by a webhook
// gateway in front of the bot.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/botflow/ingress"
)

// Name is the name used to register this ingress.
const Name = "kafka"

// DefaultConsumerGroup is used when the config leaves the group empty, so
// that several dispatcher replicas share the topic instead of each seeing
// every update.
const DefaultConsumerGroup = "botflow"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	ingress.Register(Name, Build, ingress.KafkaCapabilities)
}

// Build creates a new Kafka ingress.
func Build(ctx context.Context, cfg ingress.Config, logger watermill.LoggerAdapter) (ingress.Ingress, error) {
	brokers := cfg.GetKafkaBrokers()
	consumerGroup := cfg.GetKafkaConsumerGroup()
	if consumerGroup == "" {
		consumerGroup = DefaultConsumerGroup
	}

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		logger,
	)
	if err != nil {
		return ingress.Ingress{}, err
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:       brokers,
			Unmarshaler:   kafka.DefaultMarshaler{},
			ConsumerGroup: consumerGroup,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return ingress.Ingress{}, err
	}

	return ingress.Ingress{
		Name:       Name,
		Publisher:  publisher,
		Subscriber: subscriber,
		Topic:      cfg.GetUpdatesTopic(),
	}, nil
}

func Capabilities() ingress.Capabilities {
	return ingress.KafkaCapabilities
}
