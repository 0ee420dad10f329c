// Package natskv stores magazines in a NATS JetStream key/value bucket under
// keys of the form "<conversation>.<actor|null>".
package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/nats-io/nats.go"

	"github.com/drblury/botflow/internal/runtime/jsoncodec"
	"github.com/drblury/botflow/storage"
)

// StorageName is the name used to register this store.
const StorageName = "natskv"

// DefaultBucket is used when Config.Bucket is empty.
const DefaultBucket = "botflow_states"

func init() {
	Register()
}

// Register adds the NATS key/value store to the default registry.
func Register() {
	storage.Register(StorageName, Build)
}

func Build(_ context.Context, cfg storage.Config, logger watermill.LoggerAdapter) (storage.Store, error) {
	s, err := New(Config{URL: cfg.GetNATSURL(), Bucket: cfg.GetNATSKVBucket()})
	if err != nil {
		return nil, err
	}
	logger.Info("Using NATS key/value state storage", watermill.LogFields{"bucket": s.config.Bucket})
	return s, nil
}

// Config holds NATS key/value configuration.
type Config struct {
	URL    string
	Bucket string
	// Replicas is the bucket replica count when the bucket is created.
	Replicas int
}

func (c Config) withDefaults() Config {
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Store is a JetStream key/value backed store.
type Store struct {
	nc     *nats.Conn
	kv     nats.KeyValue
	config Config
}

// New connects to NATS and binds to the bucket, creating it when missing.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if cfg.URL == "" {
		return nil, errors.New("natskv: URL is required")
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("botflow-state"))
	if err != nil {
		return nil, fmt.Errorf("natskv: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskv: create JetStream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "botflow state machine history",
			Replicas:    cfg.Replicas,
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natskv: bind bucket %s: %w", cfg.Bucket, err)
	}

	return &Store{nc: nc, kv: kv, config: cfg}, nil
}

func (s *Store) Save(ctx context.Context, key storage.Key, names []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	encoded, err := jsoncodec.Marshal(names)
	if err != nil {
		return fmt.Errorf("natskv: encode names: %w", err)
	}
	if _, err := s.kv.Put(key.String(), encoded); err != nil {
		return fmt.Errorf("natskv: save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key storage.Key) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(key.String())
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("natskv: load %s: %w", key, err)
	}

	var names []string
	if err := jsoncodec.Unmarshal(entry.Value(), &names); err != nil {
		return nil, fmt.Errorf("natskv: decode %s: %w", key, err)
	}
	return names, nil
}

func (s *Store) Close() error {
	s.nc.Close()
	return nil
}
