// Package nats provides a NATS Core ingress. Core NATS has no persistence, so
// updates published while no dispatcher is subscribed are lost; use the
// jetstream ingress when that matters.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/botflow/ingress"
)

// Name is the name used to register this ingress.
const Name = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	ingress.Register(Name, Build, ingress.NATSCapabilities)
}

// Build creates a new NATS ingress.
func Build(ctx context.Context, cfg ingress.Config, logger watermill.LoggerAdapter) (ingress.Ingress, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:       url,
			Marshaler: marshaler,
		},
		logger,
	)
	if err != nil {
		return ingress.Ingress{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			Unmarshaler: marshaler,
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
	return ingress.NATSCapabilities
}
