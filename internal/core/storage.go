package core

import (
	"context"
	"fmt"

	"benchcore/internal/config"
	"benchcore/internal/infra/persistence/memory"
	"benchcore/internal/infra/persistence/postgres"
	redisstore "benchcore/internal/infra/persistence/redis"
	"benchcore/internal/infra/persistence/sqlite"

	goredis "github.com/redis/go-redis/v9"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // Redis key-value buckets
)

// OpenPersistentStore selects a backend from cfg. The returned close function
// releases the backend connection and is safe to call for every driver.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, engine *RulesEngine, opts ...memory.Option) (PersistentStore, func() error, error) {
	noop := func() error { return nil }
	switch StorageDriver(cfg.Driver) {
	case StorageMemory:
		return memory.NewStore(engine, opts...), noop, nil
	case StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine, opts...)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case StorageRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store, err := redisstore.NewStore(ctx, client, cfg.Redis.Prefix, engine, opts...)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
