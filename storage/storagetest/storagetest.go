// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/botflow/storage"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("unknown key loads empty", func(t *testing.T) {
		s := newStore(t)
		names, err := s.Load(context.Background(), storage.Key{ConversationID: 404})
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		key := storage.Key{ConversationID: 7, ActorID: 42, HasActor: true}

		require.NoError(t, s.Save(context.Background(), key, []string{"A", "B"}))
		names, err := s.Load(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, names)
	})

	t.Run("overwrite", func(t *testing.T) {
		s := newStore(t)
		key := storage.Key{ConversationID: 7}

		require.NoError(t, s.Save(context.Background(), key, []string{"A", "B", "C"}))
		require.NoError(t, s.Save(context.Background(), key, []string{"A"}))
		names, err := s.Load(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, names)
	})

	t.Run("actor scoping", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		chatOnly := storage.Key{ConversationID: 7}
		alice := storage.Key{ConversationID: 7, ActorID: 1, HasActor: true}
		bob := storage.Key{ConversationID: 7, ActorID: 2, HasActor: true}

		require.NoError(t, s.Save(ctx, chatOnly, []string{"chat"}))
		require.NoError(t, s.Save(ctx, alice, []string{"alice"}))
		require.NoError(t, s.Save(ctx, bob, []string{"bob"}))

		for key, want := range map[storage.Key]string{chatOnly: "chat", alice: "alice", bob: "bob"} {
			names, err := s.Load(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, []string{want}, names, key.String())
		}
	})

	t.Run("saved slice is not retained", func(t *testing.T) {
		s := newStore(t)
		key := storage.Key{ConversationID: 9}
		names := []string{"A", "B"}

		require.NoError(t, s.Save(context.Background(), key, names))
		names[0] = "mutated"

		loaded, err := s.Load(context.Background(), key)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, loaded)
	})

	t.Run("concurrent keys", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(cid int64) {
				defer wg.Done()
				key := storage.Key{ConversationID: cid}
				for step := 0; step < 5; step++ {
					assert.NoError(t, s.Save(ctx, key, []string{fmt.Sprintf("s%d", step)}))
				}
			}(int64(i))
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			names, err := s.Load(ctx, storage.Key{ConversationID: int64(i)})
			require.NoError(t, err)
			assert.Equal(t, []string{"s4"}, names)
		}
	})
}
