package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real Redis when REDIS_ADDR is set, e.g. REDIS_ADDR=localhost:6379
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())

	s := NewRedisStoreFromClient(client)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		s.Close()
	})
	return s
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "ns", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "ns", "a", entry{Name: "A"}))
	require.NoError(t, s.Update(ctx, "ns", "a", map[string]any{"image": "x.jpg"}))

	var got entry
	found, err := Load(ctx, s, "ns", "a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, entry{Name: "A", Image: "x.jpg"}, got)

	all, err := s.GetAll(ctx, "ns")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.Clear(ctx, "ns"))
	_, err = s.Get(ctx, "ns", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_SetFieldOnce(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	written, err := s.SetFieldOnce(ctx, "ns", "a", "up_to_date", false)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.SetFieldOnce(ctx, "ns", "a", "up_to_date", true)
	require.NoError(t, err)
	assert.False(t, written)

	var got entry
	_, err = Load(ctx, s, "ns", "a", &got)
	require.NoError(t, err)
	require.NotNil(t, got.UpToDate)
	assert.False(t, *got.UpToDate)
}

func TestRedisStore_StandaloneNeverExpires(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "ns", "a", entry{Name: "A"}))
	_, err := s.SetFieldOnce(ctx, "ns", "a", "up_to_date", true)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "ns", "b", map[string]any{"name": "B"}))

	ttl, err := s.client.TTL(ctx, hashKey("ns")).Result()
	require.NoError(t, err)
	// -1 = key exists without expiry
	assert.Equal(t, time.Duration(-1), ttl)

	cached := s.WithTTL(time.Minute)
	require.NoError(t, cached.Set(ctx, "other", "a", entry{Name: "A"}))
	ttl, err = s.client.TTL(ctx, hashKey("other")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	// the copy does not leak its TTL into the original
	require.NoError(t, s.Set(ctx, "ns", "c", entry{Name: "C"}))
	ttl, err = s.client.TTL(ctx, hashKey("ns")).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestRedisStore_ReadThrough(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	value, warmErr, err := s.ReadThrough(ctx, "ns", "a", func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"name":"A"}`), nil
	})
	require.NoError(t, err)
	require.NoError(t, warmErr)
	assert.JSONEq(t, `{"name":"A"}`, string(value))

	cached, err := s.Get(ctx, "ns", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"A"}`, string(cached))
}

func TestRedisStore_ReadThroughLosesToConcurrentInvalidate(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	value, warmErr, err := s.ReadThrough(ctx, "ns", "a", func(ctx context.Context) (json.RawMessage, error) {
		// a write commits and invalidates while the old value is in flight
		require.NoError(t, s.Invalidate(ctx, "ns", "a"))
		return json.RawMessage(`{"name":"stale"}`), nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, warmErr, ErrConflict)
	assert.JSONEq(t, `{"name":"stale"}`, string(value))

	_, err = s.Get(ctx, "ns", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ReadThroughLoadError(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	_, warmErr, err := s.ReadThrough(ctx, "ns", "a", func(context.Context) (json.RawMessage, error) {
		return nil, ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, warmErr)

	_, err = s.Get(ctx, "ns", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}
