package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name     string `json:"name"`
	Image    string `json:"image,omitempty"`
	UpToDate *bool  `json:"up_to_date,omitempty"`
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "ns", "nope")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "ns", "a", entry{Name: "A"}))

	var got entry
	found, err := Load(ctx, s, "ns", "a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "A", got.Name)

	found, err = Load(ctx, s, "ns", "b", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Update(ctx, "ns", "a", map[string]any{"name": "A", "image": "one.jpg"}))
	require.NoError(t, s.Update(ctx, "ns", "a", map[string]any{"image": "two.jpg"}))

	var got entry
	_, err := Load(ctx, s, "ns", "a", &got)
	require.NoError(t, err)
	assert.Equal(t, entry{Name: "A", Image: "two.jpg"}, got)
}

func TestMemoryStore_SetFieldOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Update(ctx, "ns", "a", map[string]any{"name": "A"}))

	written, err := s.SetFieldOnce(ctx, "ns", "a", "up_to_date", true)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = s.SetFieldOnce(ctx, "ns", "a", "up_to_date", false)
	require.NoError(t, err)
	assert.False(t, written)

	var got entry
	_, err = Load(ctx, s, "ns", "a", &got)
	require.NoError(t, err)
	require.NotNil(t, got.UpToDate)
	assert.True(t, *got.UpToDate)
	assert.Equal(t, "A", got.Name)
}

func TestMemoryStore_SetFieldOnceConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(v bool) {
			defer wg.Done()
			written, err := s.SetFieldOnce(ctx, "ns", "k", "up_to_date", v)
			assert.NoError(t, err)
			if written {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestMemoryStore_GetAllAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "ns", "a", entry{Name: "A"}))
	require.NoError(t, s.Set(ctx, "ns", "b", entry{Name: "B"}))
	require.NoError(t, s.Set(ctx, "other", "c", entry{Name: "C"}))

	all, err := LoadAll[entry](ctx, s, "ns")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "B", all["b"].Name)

	require.NoError(t, s.Clear(ctx, "ns"))
	raw, err := s.GetAll(ctx, "ns")
	require.NoError(t, err)
	assert.Empty(t, raw)

	raw, err = s.GetAll(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "ns", "a", entry{Name: "A"}))

	raw, err := s.Get(ctx, "ns", "a")
	require.NoError(t, err)
	raw[2] = 'X'

	again, err := s.Get(ctx, "ns", "a")
	require.NoError(t, err)
	assert.True(t, json.Valid(again))
	assert.Contains(t, string(again), `"name"`)
}

func TestMergeFields_RejectsNonObject(t *testing.T) {
	_, err := mergeFields([]byte(`[1,2]`), map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestUserNamespace(t *testing.T) {
	assert.Equal(t, "user:42:mangaCache", UserNamespace("42", NamespaceManga))
}
