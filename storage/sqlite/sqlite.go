// Package sqlite stores magazines in a SQLite database, one row per key.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	"github.com/drblury/botflow/storage"
)

// StorageName is the name used to register this store.
const StorageName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS fsm_states (
	conversation_id INTEGER NOT NULL,
	actor_id TEXT NOT NULL,
	names TEXT NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (conversation_id, actor_id)
);`

func init() {
	Register()
}

// Register adds the SQLite store to the default registry.
func Register() {
	storage.Register(StorageName, Build)
}

func Build(ctx context.Context, cfg storage.Config, logger watermill.LoggerAdapter) (storage.Store, error) {
	s, err := Open(ctx, cfg.GetSQLiteFile())
	if err != nil {
		return nil, err
	}
	logger.Info("Using SQLite state storage", watermill.LogFields{"file": cfg.GetSQLiteFile()})
	return s, nil
}

// Store persists magazines in the fsm_states table.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. Use ":memory:" for a
// throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: file is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite: execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, key storage.Key, names []string) error {
	encoded, err := jsoncodec.Marshal(names)
	if err != nil {
		return fmt.Errorf("sqlite: encode names: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fsm_states (conversation_id, actor_id, names, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (conversation_id, actor_id)
		DO UPDATE SET names = excluded.names, updated_at = excluded.updated_at
	`, key.ConversationID, key.ActorPart(), string(encoded))
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key storage.Key) ([]string, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx,
		`SELECT names FROM fsm_states WHERE conversation_id = ? AND actor_id = ?`,
		key.ConversationID, key.ActorPart(),
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load %s: %w", key, err)
	}

	var names []string
	if err := jsoncodec.Unmarshal([]byte(encoded), &names); err != nil {
		return nil, fmt.Errorf("sqlite: decode %s: %w", key, err)
	}
	return names, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
