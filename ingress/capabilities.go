package ingress

// Capabilities describes the delivery guarantees of an ingress backend.
type Capabilities struct {
	Name string

	// SupportsOrdering indicates updates arrive in the order Telegram sent them.
	SupportsOrdering bool

	// SupportsAck indicates the backend waits for an acknowledgment before
	// considering an update delivered.
	SupportsAck bool

	// SupportsNack indicates a nacked update is redelivered.
	SupportsNack bool

	// Durable indicates updates are retained while no dispatcher is running.
	Durable bool

	// Publishes indicates the ingress exposes a Publisher, so updates can be
	// forwarded into it from elsewhere.
	Publishes bool
}

// SupportsReliableDelivery reports at-least-once delivery (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Publishes:        true,
	}

	// TelegramCapabilities for getUpdates long polling. Telegram keeps
	// unconfirmed updates for 24 hours and the polling offset only moves
	// past an update once it has been acked.
	TelegramCapabilities = Capabilities{
		Name:             "telegram",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
	}

	// HTTPCapabilities for the webhook receiver. A nacked update answers
	// the webhook call with a server error and Telegram retries it.
	HTTPCapabilities = Capabilities{
		Name:         "http",
		SupportsAck:  true,
		SupportsNack: true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		Durable:          true,
		Publishes:        true,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		Publishes:        true,
	}

	NATSCapabilities = Capabilities{
		Name:      "nats",
		Publishes: true,
	}

	JetStreamCapabilities = Capabilities{
		Name:             "jetstream",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		Publishes:        true,
	}

	FileCapabilities = Capabilities{
		Name:             "file",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		Durable:          true,
		Publishes:        true,
	}
)
