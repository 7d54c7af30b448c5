// Package redis stores graph documents in Redis so several runtimes can share them.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "autotron:graph:"

// Store implements ports.GraphStore, ports.Watchable and ports.Locker using Redis.
type Store struct {
	client *backend.Client
	prefix string
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for graph documents.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) channel() string {
	return s.prefix + "changes"
}

// Save persists the document, indexes its name and announces the change.
func (s *Store) Save(ctx context.Context, name string, doc *domain.Document) error {
	if name == "" {
		return errors.New("graph name cannot be empty")
	}
	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(name), data, 0)
	if name != ports.LastActiveName {
		// Score 0 keeps ZRange lexicographic among members.
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: 0, Member: name})
	}
	pipe.Publish(ctx, s.channel(), name)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a document from Redis.
func (s *Store) Load(ctx context.Context, name string) (*domain.Document, error) {
	val, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, name)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return domain.ParseDocument(val)
}

// Delete removes the document and its index entry.
func (s *Store) Delete(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(name))
	pipe.ZRem(ctx, s.indexKey(), name)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns the indexed document names in lexicographic order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Watch subscribes to the change channel that Save publishes on.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	sub := s.client.Subscribe(ctx, s.channel())
	// Wait for the subscription confirmation so no publish is missed afterwards.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to graph changes: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload == ports.LastActiveName {
					continue
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Lock acquires the store-wide lock for key.
func (s *Store) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	return NewLocker(s.client, s.prefix).Lock(ctx, key, ttl)
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
