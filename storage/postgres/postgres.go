// Package postgres stores magazines in a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/ThreeDotsLabs/watermill"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	"github.com/drblury/botflow/storage"
)

// StorageName is the name used to register this store.
const StorageName = "postgres"

// DefaultTable is the table used when Config.Table is empty.
const DefaultTable = "botflow_fsm_states"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func init() {
	Register()
}

// Register adds the PostgreSQL store to the default registry.
func Register() {
	storage.Register(StorageName, Build)
	storage.Register("postgresql", Build) // Alias
}

func Build(ctx context.Context, cfg storage.Config, logger watermill.LoggerAdapter) (storage.Store, error) {
	s, err := Open(ctx, Config{ConnectionString: cfg.GetPostgresURL()})
	if err != nil {
		return nil, err
	}
	logger.Info("Using PostgreSQL state storage", watermill.LogFields{"table": s.config.Table})
	return s, nil
}

// Config holds PostgreSQL-specific configuration.
type Config struct {
	// ConnectionString is a lib/pq URL or DSN.
	ConnectionString string
	// Table is the table holding one row per key.
	Table        string
	MaxOpenConns int
	MaxIdleConns int
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	return c
}

// Store persists magazines with an upsert per save.
type Store struct {
	db     *sql.DB
	config Config
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.ConnectionString == "" {
		return nil, errors.New("postgres: connection string is required")
	}
	if !identifierPattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", cfg.Table)
	}

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	s := &Store{db: db, config: cfg}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			conversation_id BIGINT NOT NULL,
			actor_id TEXT NOT NULL,
			names JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (conversation_id, actor_id)
		)`, s.config.Table))
	if err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, key storage.Key, names []string) error {
	encoded, err := jsoncodec.Marshal(names)
	if err != nil {
		return fmt.Errorf("postgres: encode names: %w", err)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (conversation_id, actor_id, names, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (conversation_id, actor_id)
		DO UPDATE SET names = EXCLUDED.names, updated_at = EXCLUDED.updated_at
	`, s.config.Table), key.ConversationID, key.ActorPart(), string(encoded))
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key storage.Key) ([]string, error) {
	var encoded []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT names FROM %s WHERE conversation_id = $1 AND actor_id = $2`, s.config.Table),
		key.ConversationID, key.ActorPart(),
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", key, err)
	}

	var names []string
	if err := jsoncodec.Unmarshal(encoded, &names); err != nil {
		return nil, fmt.Errorf("postgres: decode %s: %w", key, err)
	}
	return names, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
