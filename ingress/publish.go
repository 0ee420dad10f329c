package ingress

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	"github.com/drblury/botflow/internal/runtime/metadata"
)

// NewMessage wraps a raw update payload in a watermill message with a fresh
// uuid. source, when set, is recorded in the message metadata.
func NewMessage(payload []byte, source string) *message.Message {
	msg := message.NewMessage(uuid.NewString(), payload)
	if source != "" {
		msg.Metadata.Set(metadata.KeySource, source)
	}
	return msg
}

// EncodeUpdate marshals u into a message ready to be published.
func EncodeUpdate(u telego.Update, source string) (*message.Message, error) {
	payload, err := jsoncodec.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal update %d: %w", u.UpdateID, err)
	}
	return NewMessage(payload, source), nil
}

// Publish encodes u and publishes it to topic.
func Publish(ctx context.Context, publisher message.Publisher, topic string, u telego.Update) error {
	if publisher == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}

	msg, err := EncodeUpdate(u, "")
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	return publisher.Publish(topic, msg)
}
