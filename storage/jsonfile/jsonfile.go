// Package jsonfile stores every magazine in one JSON document on disk:
//
//	{"<conversation>": {"<actor|null>": ["state", ...]}}
//
// The whole document is read, changed and rewritten on every save while a
// process-wide lock is held, so this backend suits low to medium traffic.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	"github.com/drblury/botflow/storage"
)

// StorageName is the name used to register this store.
const StorageName = "jsonfile"

func init() {
	Register()
}

// Register adds the JSON file store to the default registry.
func Register() {
	storage.Register(StorageName, Build)
}

func Build(_ context.Context, cfg storage.Config, logger watermill.LoggerAdapter) (storage.Store, error) {
	s, err := New(cfg.GetStateFile())
	if err != nil {
		return nil, err
	}
	logger.Info("Using JSON file state storage", watermill.LogFields{"path": s.path})
	return s, nil
}

type document map[string]map[string][]string

// Store is the file-backed store. All stores in a process share one lock.
type Store struct {
	path string
}

var fileMu sync.Mutex

// New creates a store writing to path, creating its directory if needed.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("jsonfile: state file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: create directory: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Save(_ context.Context, key storage.Key, names []string) error {
	fileMu.Lock()
	defer fileMu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	conv := key.ConversationPart()
	if doc[conv] == nil {
		doc[conv] = make(map[string][]string)
	}
	doc[conv][key.ActorPart()] = slices.Clone(names)

	data, err := jsoncodec.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode document: %w", err)
	}
	return s.writeAtomic(data)
}

func (s *Store) Load(_ context.Context, key storage.Key) ([]string, error) {
	fileMu.Lock()
	defer fileMu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return slices.Clone(doc[key.ConversationPart()][key.ActorPart()]), nil
}

func (s *Store) read() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return make(document), nil
	}
	if err != nil {
		return nil, fmt.Errorf("jsonfile: read %s: %w", s.path, err)
	}

	doc := make(document)
	if err := jsoncodec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jsonfile: decode %s: %w", s.path, err)
	}
	return doc, nil
}

// writeAtomic replaces the document through a temp file in the same
// directory so readers never observe a partial write.
func (s *Store) writeAtomic(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: replace document: %w", err)
	}
	return nil
}
