package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
)

// HybridStore combines Redis and PostgreSQL.
// PostgreSQL: authoritative, every write lands here first.
// Redis: read-through cache for Get, invalidated after each write. A Get that
// raced a write never caches the value it read.
type HybridStore struct {
	redis    *RedisStore
	postgres *PostgresStore
	logger   *slog.Logger
	closed   atomic.Bool
}

// NewHybridStore creates a new hybrid cache store
func NewHybridStore(redis *RedisStore, postgres *PostgresStore, logger *slog.Logger) *HybridStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridStore{
		redis:    redis,
		postgres: postgres,
		logger:   logger,
	}
}

var errStoreClosed = errors.New("cache store is closed")

// Get tries Redis first, falls back to PostgreSQL and warms Redis with the result
func (h *HybridStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	if h.closed.Load() {
		return nil, errStoreClosed
	}

	value, err := h.redis.Get(ctx, namespace, key)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrNotFound) {
		h.logger.Warn("redis_get_failed", "namespace", namespace, "key", key, "error", err)
	}

	h.logger.Debug("redis_miss_fallback_to_postgres", "namespace", namespace, "key", key)

	value, warmErr, err := h.redis.ReadThrough(ctx, namespace, key, func(ctx context.Context) (json.RawMessage, error) {
		return h.postgres.Get(ctx, namespace, key)
	})
	if err != nil {
		return nil, err
	}

	switch {
	case errors.Is(warmErr, ErrConflict):
		h.logger.Debug("redis_warm_skipped_concurrent_write", "namespace", namespace, "key", key)
	case warmErr != nil:
		h.logger.Warn("redis_warm_failed", "namespace", namespace, "key", key, "error", warmErr)
	}
	return value, nil
}

func (h *HybridStore) Set(ctx context.Context, namespace, key string, value any) error {
	if h.closed.Load() {
		return errStoreClosed
	}
	if err := h.postgres.Set(ctx, namespace, key, value); err != nil {
		return err
	}
	h.invalidate(ctx, namespace, key)
	return nil
}

func (h *HybridStore) Update(ctx context.Context, namespace, key string, partial map[string]any) error {
	if h.closed.Load() {
		return errStoreClosed
	}
	if err := h.postgres.Update(ctx, namespace, key, partial); err != nil {
		return err
	}
	h.invalidate(ctx, namespace, key)
	return nil
}

func (h *HybridStore) SetFieldOnce(ctx context.Context, namespace, key, field string, value any) (bool, error) {
	if h.closed.Load() {
		return false, errStoreClosed
	}
	written, err := h.postgres.SetFieldOnce(ctx, namespace, key, field, value)
	if err != nil {
		return false, err
	}
	if written {
		h.invalidate(ctx, namespace, key)
	}
	return written, nil
}

// GetAll always reads PostgreSQL, Redis may hold only a subset of a namespace
func (h *HybridStore) GetAll(ctx context.Context, namespace string) (map[string]json.RawMessage, error) {
	if h.closed.Load() {
		return nil, errStoreClosed
	}
	return h.postgres.GetAll(ctx, namespace)
}

func (h *HybridStore) Clear(ctx context.Context, namespace string) error {
	if h.closed.Load() {
		return errStoreClosed
	}
	if err := h.postgres.Clear(ctx, namespace); err != nil {
		return err
	}
	if err := h.redis.Clear(ctx, namespace); err != nil {
		h.logger.Error("redis_clear_failed", "namespace", namespace, "error", err)
	}
	return nil
}

func (h *HybridStore) invalidate(ctx context.Context, namespace, key string) {
	if err := h.redis.Invalidate(ctx, namespace, key); err != nil {
		// PostgreSQL has the write; a stale Redis entry expires with the TTL
		h.logger.Error("redis_invalidate_failed",
			"namespace", namespace,
			"key", key,
			"error", err,
		)
	}
}

// Close closes both Redis and PostgreSQL connections
func (h *HybridStore) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := h.redis.Close(); err != nil {
		h.logger.Error("failed_to_close_redis", "error", err)
	}
	if err := h.postgres.Close(); err != nil {
		h.logger.Error("failed_to_close_postgres", "error", err)
	}
	return nil
}
