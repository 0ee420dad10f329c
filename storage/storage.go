// Package storage defines where state machine history is persisted. Each
// backend lives in its own sub-package and registers itself with the
// storage registry under the name used by the state_storage setting.
package storage

import (
	"context"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// NullActor marks the actor part of a key that has no actor.
const NullActor = "null"

// Key addresses one magazine: a conversation, optionally narrowed to an
// actor within it.
type Key struct {
	ConversationID int64
	ActorID        int64
	HasActor       bool
}

// ConversationPart renders the conversation id as a document key.
func (k Key) ConversationPart() string {
	return strconv.FormatInt(k.ConversationID, 10)
}

// ActorPart renders the actor id as a document key, or NullActor.
func (k Key) ActorPart() string {
	if !k.HasActor {
		return NullActor
	}
	return strconv.FormatInt(k.ActorID, 10)
}

// String renders the key as "<conversation>.<actor|null>".
func (k Key) String() string {
	return k.ConversationPart() + "." + k.ActorPart()
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return Key{}, &InvalidKeyError{Value: s}
	}
	conv, actor := s[:i], s[i+1:]
	cid, err := strconv.ParseInt(conv, 10, 64)
	if err != nil {
		return Key{}, &InvalidKeyError{Value: s}
	}
	if actor == NullActor {
		return Key{ConversationID: cid}, nil
	}
	aid, err := strconv.ParseInt(actor, 10, 64)
	if err != nil {
		return Key{}, &InvalidKeyError{Value: s}
	}
	return Key{ConversationID: cid, ActorID: aid, HasActor: true}, nil
}

// InvalidKeyError reports a malformed textual storage key.
type InvalidKeyError struct {
	Value string
}

func (e *InvalidKeyError) Error() string {
	return "storage: invalid key " + strconv.Quote(e.Value) + ", want <conversation>.<actor|null>"
}

// Store persists ordered state name lists. Load returns an empty list for
// keys that were never saved. Implementations must be safe for concurrent
// use with different keys.
type Store interface {
	Save(ctx context.Context, key Key, names []string) error
	Load(ctx context.Context, key Key) ([]string, error)
}

// Builder creates a store from configuration.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Store, error)

// Config provides the configuration values needed by storage backends.
type Config interface {
	GetStateStorage() string
	GetStateFile() string
	GetSQLiteFile() string
	GetPostgresURL() string
	GetNATSURL() string
	GetNATSKVBucket() string
}
