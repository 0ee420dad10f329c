package update

import (
	"fmt"
	"strings"

	"github.com/mymmrac/telego"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	"github.com/drblury/botflow/internal/runtime/metadata"
)

// Event is an inbound Telegram update together with the JSON it was decoded
// from and the headers of the transport message that carried it. Raw and
// Metadata are empty for updates constructed in code.
type Event struct {
	Update   telego.Update
	Raw      []byte
	Metadata metadata.Metadata
}

// New wraps an update built in code.
func New(u telego.Update) *Event {
	return &Event{Update: u}
}

// Decode parses a JSON-encoded Telegram update and rejects kinds the
// dispatcher does not route.
func Decode(data []byte) (*Event, error) {
	var u telego.Update
	if err := jsoncodec.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode update: %w", err)
	}
	if Classify(u) == KindUnknown {
		return nil, fmt.Errorf("%w: update %d", errspkg.ErrUnsupportedUpdate, u.UpdateID)
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Event{Update: u, Raw: raw}, nil
}

func (e *Event) Kind() Kind { return Classify(e.Update) }

func (e *Event) Key() Key { return ExtractKey(e.Update) }

// JSON returns the raw payload, encoding the update when it was built in code.
func (e *Event) JSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return jsoncodec.Marshal(e.Update)
}

// Message returns the message carried by message-like kinds.
func (e *Event) Message() *telego.Message {
	u := e.Update
	switch {
	case u.Message != nil:
		return u.Message
	case u.EditedMessage != nil:
		return u.EditedMessage
	case u.ChannelPost != nil:
		return u.ChannelPost
	case u.EditedChannelPost != nil:
		return u.EditedChannelPost
	}
	return nil
}

// Text returns the message text, falling back to the caption for media.
func (e *Event) Text() (string, bool) {
	m := e.Message()
	if m == nil {
		return "", false
	}
	if m.Text != "" {
		return m.Text, true
	}
	if m.Caption != "" {
		return m.Caption, true
	}
	return "", false
}

// Command parses a leading bot command such as "/start@my_bot payload" into
// its name ("start") and arguments ("payload").
func (e *Event) Command() (name, args string, ok bool) {
	text, ok := e.Text()
	if !ok || !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}

// ChatType reports the type of the chat the update belongs to, if any.
func (e *Event) ChatType() (string, bool) {
	u := e.Update
	if m := e.Message(); m != nil {
		return m.Chat.Type, true
	}
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.GetChat().Type, true
	case u.MyChatMember != nil:
		return u.MyChatMember.Chat.Type, true
	case u.ChatMember != nil:
		return u.ChatMember.Chat.Type, true
	case u.ChatJoinRequest != nil:
		return u.ChatJoinRequest.Chat.Type, true
	}
	return "", false
}

// CallbackData returns the payload of an inline keyboard button press.
func (e *Event) CallbackData() (string, bool) {
	if e.Update.CallbackQuery == nil {
		return "", false
	}
	return e.Update.CallbackQuery.Data, true
}
