// Package ingress defines how Telegram updates reach a dispatcher. Each
// backend (telegram, http, kafka, nats, ...) lives in its own sub-package and
// registers a Builder with the ingress registry.
package ingress

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Ingress is a source of JSON-encoded Telegram updates. Publisher is nil for
// receive-only sources such as long polling.
type Ingress struct {
	Name       string
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Topic is what the subscriber must be subscribed to.
	Topic string
}

// Close closes the publisher and the subscriber. A value serving as both is
// closed once.
func (in Ingress) Close() error {
	var errs []error
	if in.Publisher != nil && any(in.Publisher) != any(in.Subscriber) {
		errs = append(errs, in.Publisher.Close())
	}
	if in.Subscriber != nil {
		errs = append(errs, in.Subscriber.Close())
	}
	return errors.Join(errs...)
}

// Builder creates an ingress from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Ingress, error)

// Config provides the configuration values needed by ingress backends.
// It is satisfied by *config.Config.
type Config interface {
	// GetIngress returns the backend name.
	GetIngress() string
	GetUpdatesTopic() string

	// Telegram
	GetTelegramToken() string
	GetTelegramWebhookSecret() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string

	// File
	GetIngressFile() string
}

// CapabilitiesProvider is implemented by ingresses that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
