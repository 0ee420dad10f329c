package update

import (
	"errors"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/botflow/internal/runtime/errors"
)

func TestDecodeMessage(t *testing.T) {
	payload := []byte(`{"update_id":10,"message":{"message_id":1,"date":1700000000,` +
		`"chat":{"id":7,"type":"private"},"from":{"id":42,"is_bot":false,"first_name":"Ada"},` +
		`"text":"/start@demo_bot hello there"}}`)

	event, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, KindMessage, event.Kind())
	assert.Equal(t, Key{ConversationID: 7, HasConversation: true, ActorID: 42, HasActor: true}, event.Key())
	assert.Equal(t, payload, event.Raw)

	name, args, ok := event.Command()
	require.True(t, ok)
	assert.Equal(t, "start", name)
	assert.Equal(t, "hello there", args)

	chatType, ok := event.ChatType()
	require.True(t, ok)
	assert.Equal(t, "private", chatType)
}

func TestDecodeRejectsUnroutedUpdates(t *testing.T) {
	_, err := Decode([]byte(`{"update_id":11}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errspkg.ErrUnsupportedUpdate))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`{"update_id":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode update")
}

func TestTextFallsBackToCaption(t *testing.T) {
	event := New(telego.Update{Message: &telego.Message{Caption: "a photo"}})

	text, ok := event.Text()
	require.True(t, ok)
	assert.Equal(t, "a photo", text)

	_, _, ok = event.Command()
	assert.False(t, ok)
}

func TestCommandRejectsBareSlash(t *testing.T) {
	event := New(telego.Update{Message: &telego.Message{Text: "/"}})
	_, _, ok := event.Command()
	assert.False(t, ok)
}

func TestNonMessageAccessors(t *testing.T) {
	event := New(telego.Update{CallbackQuery: &telego.CallbackQuery{ID: "q", Data: "yes"}})

	_, ok := event.Text()
	assert.False(t, ok)
	_, ok = event.ChatType()
	assert.False(t, ok)

	data, ok := event.CallbackData()
	require.True(t, ok)
	assert.Equal(t, "yes", data)

	_, ok = New(telego.Update{Poll: &telego.Poll{ID: "p"}}).CallbackData()
	assert.False(t, ok)
}

func TestJSONEncodesBuiltUpdates(t *testing.T) {
	event := New(telego.Update{UpdateID: 5, Poll: &telego.Poll{ID: "p1"}})

	data, err := event.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"update_id":5`)
	assert.Contains(t, string(data), `"id":"p1"`)

	raw := &Event{Raw: []byte(`{"update_id":1}`)}
	data, err = raw.JSON()
	require.NoError(t, err)
	assert.Equal(t, `{"update_id":1}`, string(data))
}
