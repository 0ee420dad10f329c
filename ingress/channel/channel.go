// Package channel provides an in-memory ingress backed by a watermill Go
// channel. Updates published to it are delivered to the dispatcher in the
// same process, which makes it the ingress of choice for tests and for bots
// that receive updates through their own code.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/botflow/ingress"
)

// Name is the name used to register this ingress.
const Name = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	ingress.Register(Name, Build, ingress.ChannelCapabilities)
}

// Build creates a new Go channel ingress. Messages published before the
// dispatcher subscribes are kept until it does.
func Build(ctx context.Context, cfg ingress.Config, logger watermill.LoggerAdapter) (ingress.Ingress, error) {
	pub, sub := Factory(gochannel.Config{Persistent: true}, logger)
	return ingress.Ingress{
		Name:       Name,
		Publisher:  pub,
		Subscriber: sub,
		Topic:      cfg.GetUpdatesTopic(),
	}, nil
}

func Capabilities() ingress.Capabilities {
	return ingress.ChannelCapabilities
}
