package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"pricewatch/internal/config"
	"pricewatch/internal/tracking"
)

// ErrNotConfigured indicates the backing client was not initialised.
var ErrNotConfigured = errors.New("storage: not configured")

// Store persists the whole tracked collection. Save replaces the collection
// atomically; Load of a store that was never written returns an empty slice.
type Store interface {
	Load(ctx context.Context) ([]tracking.Item, error)
	Save(ctx context.Context, items []tracking.Item) error
}

// AdvisoryLocker exposes a cross-process run lock.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Open builds the store selected by cfg.Driver. The returned closer is never nil.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (Store, func(), error) {
	noop := func() {}
	switch strings.ToLower(cfg.Driver) {
	case "", "file":
		fs := NewFileStore(cfg.File.Path)
		logger.Debug().Str("component", "store_file").Str("path", fs.Path()).Msg("using file store")
		return fs, noop, nil
	case "redis":
		client, err := NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}
		store := NewRedisStore(client, cfg.Redis.Key, logger)
		return store, func() { _ = client.Close() }, nil
	case "postgres":
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		store := NewPostgresStore(pool, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, noop, err
		}
		return store, store.Close, nil
	case "sqlite":
		store, err := OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// NewRedisClient prefers a redis:// URL and falls back to address fields.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("storage.redis.addr or storage.redis.url is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
