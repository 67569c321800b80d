// internal/storage/backend/backend.go
package backend

import (
	"card-recommender/internal/config"
	"card-recommender/internal/storage"
	"card-recommender/internal/storage/cache"
	"card-recommender/internal/storage/memory"
	"card-recommender/internal/storage/postgres"
	"card-recommender/internal/storage/supabase"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// Open собирает хранилище по STORAGE_BACKEND и, если задан REDIS_ADDR,
// оборачивает карты кэшем. closeFn освобождает соединения.
func Open(ctx context.Context, cfg config.Config) (store storage.Storage, closeFn func(), err error) {
	var closers []func()
	closeFn = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		store = memory.NewStorage()

	case config.BackendSupabase:
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, closeFn, fmt.Errorf("supabase client: %w", err)
		}
		store = supabase.NewStorage(client)

	default:
		pool, err := connectPostgres(ctx, cfg.DBConn)
		if err != nil {
			return nil, closeFn, err
		}
		closers = append(closers, pool.Close)
		store = postgres.NewStorage(pool)
	}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr)
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			// кэш необязателен: при недоступном Redis запросы идут в хранилище
			slog.Warn("redis unavailable at startup", "error", err, "addr", cfg.RedisAddr)
		}
		store = cache.WrapStorage(store, client, cfg.CardCacheTTL)
	}

	slog.Info("storage ready", "backend", cfg.StorageBackend, "cache", cfg.RedisAddr != "")
	return store, closeFn, nil
}

// connectPostgres ждёт БД: на старте контейнера она может подниматься дольше сервиса
func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			slog.Warn("database not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
