// Package redis persists the entity store snapshot into Redis, one key per bucket.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"benchcore/internal/infra/persistence/memory"
	"benchcore/pkg/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPrefix = "benchcore"

// Store mirrors the in-memory store into Redis after every committed transaction.
type Store struct {
	*memory.Store
	client goredis.UniversalClient
	prefix string
	mu     sync.Mutex
}

// NewStore hydrates an in-memory store from the keys under prefix and returns
// a store that writes every committed snapshot back.
func NewStore(ctx context.Context, client goredis.UniversalClient, prefix string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine, opts...), client: client, prefix: prefix}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) key(bucket string) string {
	return s.prefix + ":state:" + bucket
}

func (s *Store) revisionKey() string {
	return s.prefix + ":state:revision"
}

func (s *Store) load(ctx context.Context) error {
	keys := make([]string, len(memory.Buckets))
	for i, bucket := range memory.Buckets {
		keys[i] = s.key(bucket)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("load redis snapshot: %w", err)
	}
	var (
		snapshot memory.Snapshot
		found    bool
	)
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		if err := snapshot.DecodeBucket(memory.Buckets[i], []byte(str)); err != nil {
			return err
		}
		found = true
	}
	if found {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payloads, err := s.ExportState().EncodeBuckets()
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	for _, bucket := range memory.Buckets {
		pipe.Set(ctx, s.key(bucket), payloads[bucket], 0)
	}
	pipe.Incr(ctx, s.revisionKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write redis snapshot: %w", err)
	}
	return nil
}

// RunInTransaction applies fn and writes the committed snapshot to Redis.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, domain.PersistError{Backend: "redis", Err: err}
	}
	return res, nil
}

// Revision returns how many snapshots have been written under the prefix.
func (s *Store) Revision(ctx context.Context) (int64, error) {
	n, err := s.client.Get(ctx, s.revisionKey()).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }
