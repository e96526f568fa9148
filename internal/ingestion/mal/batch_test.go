package mal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangasync/internal/cache"
	"mangasync/internal/ingestion/malsync"
	"mangasync/internal/mirror"
	"mangasync/internal/models"
	"mangasync/internal/syncworker"
)

type pushCall struct {
	malID   string
	chapter string
	at      time.Time
}

type fakePusher struct {
	mu    sync.Mutex
	calls []pushCall
	fail  map[string]bool
}

func (f *fakePusher) Push(ctx context.Context, malID, chapter string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{malID: malID, chapter: chapter, at: time.Now()})
	if f.fail[malID] {
		return Result{Error: "Failed to update MAL: nope (Status: 500)", Status: 500}
	}
	return Result{Success: true}
}

type fakeEnricher struct {
	malURLs map[string]string
}

func (f fakeEnricher) Fetch(ctx context.Context, userID, identifier string, opts malsync.FetchOptions) *models.EnrichmentEntry {
	if !opts.Overwrite {
		panic("batch must force the lookup")
	}
	u, ok := f.malURLs[identifier]
	if !ok {
		return nil
	}
	return &models.EnrichmentEntry{MalURL: u}
}

func seed(t *testing.T, m *mirror.Mirror, slugs ...string) {
	t.Helper()
	for i, slug := range slugs {
		require.NoError(t, m.Upsert(context.Background(), "u1", models.BookmarkRecord{
			StoryID:            slug + "-id",
			StoryLink:          "https://example.test/manga/" + slug,
			CurrentChapterLink: "https://example.test/manga/" + slug + "/chapter-" + string(rune('1'+i)),
			LatestChapterLink:  "https://example.test/manga/" + slug + "/chapter-9",
		}))
	}
}

func TestBatch_ContinuesAfterFailureAndWaitsBetweenItems(t *testing.T) {
	m := mirror.New(cache.NewMemoryStore(), nil)
	seed(t, m, "a", "b", "c")

	pusher := &fakePusher{fail: map[string]bool{"2": true}}
	enricher := fakeEnricher{malURLs: map[string]string{
		"a": "https://myanimelist.net/manga/1",
		"b": "https://myanimelist.net/manga/2",
		"c": "https://myanimelist.net/manga/3",
	}}

	delay := 30 * time.Millisecond
	runner := NewBatchRunner(syncworker.NewRegistry(nil, nil), pusher, enricher, m, delay, nil)

	h, err := runner.Start(context.Background(), "u1")
	require.NoError(t, err)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish")
	}

	require.Len(t, pusher.calls, 3)
	assert.Equal(t, "1", pusher.calls[0].malID)
	assert.Equal(t, "1", pusher.calls[0].chapter)
	assert.Equal(t, "3", pusher.calls[2].malID)
	assert.Equal(t, "3", pusher.calls[2].chapter)
	for i := 1; i < len(pusher.calls); i++ {
		assert.GreaterOrEqual(t, pusher.calls[i].at.Sub(pusher.calls[i-1].at), delay)
	}

	s := h.Status()
	assert.Equal(t, models.SyncStatusCompleted, s.Status)
	assert.Equal(t, 2, s.Items)
	assert.Equal(t, 1, s.Failed)

	events := h.Events()
	require.Len(t, events, 4)
	failed := events[1].(syncworker.PushEvent)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "Status: 500")
	assert.Equal(t, syncworker.FinishedEvent{Items: 2, Failed: 1}, events[3])
}

func TestBatch_SkipsEntriesWithoutMalID(t *testing.T) {
	m := mirror.New(cache.NewMemoryStore(), nil)
	seed(t, m, "a", "b")

	pusher := &fakePusher{}
	enricher := fakeEnricher{malURLs: map[string]string{"b": "https://myanimelist.net/manga/2"}}
	runner := NewBatchRunner(syncworker.NewRegistry(nil, nil), pusher, enricher, m, time.Millisecond, nil)

	h, err := runner.Start(context.Background(), "u1")
	require.NoError(t, err)
	<-h.Done()

	require.Len(t, pusher.calls, 1)
	assert.Equal(t, "2", pusher.calls[0].malID)

	skipped := h.Events()[0].(syncworker.PushEvent)
	assert.True(t, skipped.Skipped)
	assert.Equal(t, 0, h.Status().Failed)
}

func TestBatch_NoBookmarks(t *testing.T) {
	m := mirror.New(cache.NewMemoryStore(), nil)
	runner := NewBatchRunner(syncworker.NewRegistry(nil, nil), &fakePusher{}, fakeEnricher{}, m, time.Millisecond, nil)

	_, err := runner.Start(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoBookmarks)
}
