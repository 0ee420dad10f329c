// Package memory provides a process-local state store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/botflow/storage"
)

// StorageName is the name used to register this store.
const StorageName = "memory"

func init() {
	Register()
}

// Register adds the memory store to the default registry.
func Register() {
	storage.Register(StorageName, Build)
}

func Build(_ context.Context, _ storage.Config, _ watermill.LoggerAdapter) (storage.Store, error) {
	return New(), nil
}

// Store keeps magazines in a map. Contents are lost on restart.
type Store struct {
	mu   sync.RWMutex
	data map[storage.Key][]string
}

func New() *Store {
	return &Store{data: make(map[storage.Key][]string)}
}

func (s *Store) Save(_ context.Context, key storage.Key, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(names)
	return nil
}

func (s *Store) Load(_ context.Context, key storage.Key) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data[key]), nil
}
