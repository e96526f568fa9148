package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 5

// RedisStore keeps each namespace in one hash: key "cache:<namespace>",
// field = entry key, value = JSON document. A store built by NewRedisStore
// never expires anything; only the read-through copy from WithTTL does.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // applied to the whole namespace hash, 0 disables expiry
}

// constructor for RedisStore
func NewRedisStore(redisAddr, password string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(rdb), nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// WithTTL returns a store on the same client whose namespace hashes expire
// ttl after their last write. Only for use as a cache in front of an
// authoritative store.
func (r *RedisStore) WithTTL(ttl time.Duration) *RedisStore {
	return &RedisStore{client: r.client, ttl: ttl}
}

func hashKey(namespace string) string {
	return "cache:" + namespace
}

func genKey(namespace string) string {
	return "cache:gen:" + namespace
}

func (r *RedisStore) Get(ctx context.Context, namespace, key string) (json.RawMessage, error) {
	value, err := r.client.HGet(ctx, hashKey(namespace), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, namespace, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", namespace, key, err)
	}
	return r.write(ctx, r.client, namespace, key, encoded)
}

func (r *RedisStore) Update(ctx context.Context, namespace, key string, partial map[string]any) error {
	_, err := r.mutate(ctx, namespace, key, func(current []byte) ([]byte, error) {
		return mergeFields(current, partial)
	})
	return err
}

func (r *RedisStore) SetFieldOnce(ctx context.Context, namespace, key, field string, value any) (bool, error) {
	return r.mutate(ctx, namespace, key, func(current []byte) ([]byte, error) {
		exists, err := hasField(current, field)
		if err != nil || exists {
			return nil, err
		}
		return mergeFields(current, map[string]any{field: value})
	})
}

// mutate runs an optimistic read-modify-write on one hash field. fn returns
// nil bytes to skip the write.
func (r *RedisStore) mutate(ctx context.Context, namespace, key string, fn func(current []byte) ([]byte, error)) (bool, error) {
	hk := hashKey(namespace)
	written := false

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, hk, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			written = false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return r.write(ctx, pipe, namespace, key, next)
		})
		written = err == nil
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, hk)
		if err == nil {
			return written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, fmt.Errorf("redis update %s/%s: %w", namespace, key, err)
	}
	return false, fmt.Errorf("redis update %s/%s: %w", namespace, key, ErrConflict)
}

func (r *RedisStore) write(ctx context.Context, cmd redis.Cmdable, namespace, key string, encoded []byte) error {
	hk := hashKey(namespace)
	if err := cmd.HSet(ctx, hk, key, encoded).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", namespace, key, err)
	}
	if r.ttl > 0 {
		return cmd.Expire(ctx, hk, r.ttl).Err()
	}
	return nil
}

func (r *RedisStore) GetAll(ctx context.Context, namespace string) (map[string]json.RawMessage, error) {
	fields, err := r.client.HGetAll(ctx, hashKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get all %s: %w", namespace, err)
	}
	out := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		out[key] = json.RawMessage(value)
	}
	return out, nil
}

func (r *RedisStore) Clear(ctx context.Context, namespace string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, hashKey(namespace))
		pipe.Incr(ctx, genKey(namespace))
		return nil
	})
	return err
}

// Invalidate drops one entry and bumps the namespace generation, which aborts
// any ReadThrough that loaded the entry before the write. Used by the hybrid
// store after authoritative writes.
func (r *RedisStore) Invalidate(ctx context.Context, namespace, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, hashKey(namespace), key)
		pipe.Incr(ctx, genKey(namespace))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate %s/%s: %w", namespace, key, err)
	}
	return nil
}

// ReadThrough calls load and caches its result, unless an Invalidate on the
// namespace ran between the start of load and the cache write. err is load's
// error unchanged. warmErr reports why the value was not cached; ErrConflict
// means a concurrent write won.
func (r *RedisStore) ReadThrough(ctx context.Context, namespace, key string, load func(ctx context.Context) (json.RawMessage, error)) (value json.RawMessage, warmErr error, err error) {
	loaded := false
	watchErr := r.client.Watch(ctx, func(tx *redis.Tx) error {
		loaded = true
		value, err = load(ctx)
		if err != nil {
			return nil
		}
		_, txErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return r.write(ctx, pipe, namespace, key, value)
		})
		return txErr
	}, genKey(namespace))

	if !loaded {
		// Redis unreachable before load ran
		value, err = load(ctx)
		if err != nil {
			return nil, nil, err
		}
		return value, fmt.Errorf("redis watch %s/%s: %w", namespace, key, watchErr), nil
	}
	if err != nil {
		return nil, nil, err
	}
	switch {
	case watchErr == nil:
		return value, nil, nil
	case errors.Is(watchErr, redis.TxFailedErr):
		return value, ErrConflict, nil
	default:
		return value, fmt.Errorf("redis warm %s/%s: %w", namespace, key, watchErr), nil
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
