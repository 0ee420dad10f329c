package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
)

func TestCloneIsIndependent(t *testing.T) {
	original := New(KeySource, "kafka")
	cloned := original.Clone()
	cloned[KeySource] = "nats"

	assert.Equal(t, "kafka", original.Get(KeySource))
	assert.Equal(t, "nats", cloned.Get(KeySource))
}

func TestWithLeavesReceiverUntouched(t *testing.T) {
	var empty Metadata
	withKind := empty.With(KeyUpdateKind, "message")

	assert.Nil(t, empty)
	assert.Equal(t, "message", withKind.Get(KeyUpdateKind))
	assert.Equal(t, "", empty.Get(KeyUpdateKind))
}

func TestNewIgnoresDanglingKey(t *testing.T) {
	md := New("a", "1", "b")
	assert.Equal(t, Metadata{"a": "1"}, md)
}

func TestWatermillConversion(t *testing.T) {
	wm := message.Metadata{KeyCorrelationID: "c-1"}

	md := FromWatermill(wm)
	md[KeySource] = "http"

	assert.Equal(t, "c-1", md.Get(KeyCorrelationID))
	assert.Len(t, wm, 1, "source headers must not be mutated")

	back := ToWatermill(md)
	assert.Equal(t, "http", back.Get(KeySource))
	assert.Empty(t, ToWatermill(nil))
	assert.Empty(t, FromWatermill(nil))
}
