package runtime

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/botflow/internal/runtime/logging"
	"github.com/drblury/botflow/internal/runtime/metadata"
	"github.com/drblury/botflow/internal/runtime/update"
)

// AddIngress attaches a subscriber whose messages carry JSON-encoded
// updates on topic. Attached ingresses are consumed while Run is active.
func (d *Dispatcher) AddIngress(name string, sub message.Subscriber, topic string) error {
	if d.started.Load() {
		return errspkg.ErrRegistrationAfterStart
	}
	if sub == nil {
		return errspkg.ErrSubscriberRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if name == "" {
		name = "ingress-" + topic
	}

	d.router.AddNoPublisherHandler(name, topic, sub, func(msg *message.Message) error {
		return d.ingest(msg, name)
	})
	d.ingresses.Add(1)
	return nil
}

// Consume reads updates from sub until ctx is done or the subscription
// closes. Each message is acknowledged once its update is queued; messages
// that are not valid updates are acknowledged and dropped. Messages that
// cannot be queued because the dispatcher is shutting down are nacked.
func (d *Dispatcher) Consume(ctx context.Context, sub message.Subscriber, topic string) error {
	if sub == nil {
		return errspkg.ErrSubscriberRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := d.ingest(msg, topic); err != nil {
				msg.Nack()
				if errors.Is(err, errspkg.ErrQueueClosed) {
					return nil
				}
				continue
			}
			msg.Ack()
		}
	}
}

func (d *Dispatcher) ingest(msg *message.Message, source string) error {
	event, err := update.Decode(msg.Payload)
	if err != nil {
		d.metrics.decodeError()
		d.Logger.Error("Dropping undecodable update", err, loggingpkg.LogFields{
			"message_uuid": msg.UUID,
			"source":       source,
		})
		return nil
	}

	md := metadata.FromWatermill(msg.Metadata).
		With(metadata.KeyMessageUUID, msg.UUID).
		With(metadata.KeyUpdateKind, string(event.Kind()))
	if md.Get(metadata.KeySource) == "" {
		md = md.With(metadata.KeySource, source)
	}
	event.Metadata = md

	item, err := d.Submit(event)
	if err != nil {
		return err
	}
	d.Logger.Trace("Update queued", loggingpkg.LogFields{
		"event_id":     item.ID,
		"message_uuid": msg.UUID,
		"kind":         string(item.Kind),
		"key":          item.Key.String(),
	})
	return nil
}

// correlationIDMiddleware injects a correlation ID into the message metadata when missing.
func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(metadata.KeyCorrelationID) == "" {
			msg.Metadata.Set(metadata.KeyCorrelationID, ids.NewEventID())
		}
		return h(msg)
	}
}
