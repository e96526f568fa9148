package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mangasync/internal/cache"
	"mangasync/internal/mirror"
	"mangasync/internal/models"
	"mangasync/internal/syncworker"
)

type mockResyncer struct {
	mock.Mock
}

func (m *mockResyncer) Start(userID, token string, seed []models.BookmarkRecord) (*syncworker.Handle, error) {
	args := m.Called(userID, token, seed)
	h, _ := args.Get(0).(*syncworker.Handle)
	return h, args.Error(1)
}

func page(storyIDs ...string) []models.BookmarkRecord {
	records := make([]models.BookmarkRecord, 0, len(storyIDs))
	for _, id := range storyIDs {
		records = append(records, models.BookmarkRecord{
			StoryID:            id,
			Name:               "Story " + id,
			StoryLink:          "https://example.test/manga/s" + id,
			CurrentChapterLink: "https://example.test/manga/s" + id + "/chapter-2",
			LatestChapterLink:  "https://example.test/manga/s" + id + "/chapter-3",
		})
	}
	return records
}

func TestEngine_HitPatchesPageAndSavesSnapshot(t *testing.T) {
	ctx := context.Background()
	m := mirror.New(cache.NewMemoryStore(), nil)
	resyncer := &mockResyncer{}
	engine := NewEngine(m, resyncer, nil)

	require.NoError(t, m.SaveSnapshot(ctx, "u1", page("9", "8", "7", "6", "5")))
	require.NoError(t, m.Upsert(ctx, "u1", page("1")[0]))

	report, err := engine.Run(ctx, "u1", "token", page("10", "9", "8", "7", "6"))
	require.NoError(t, err)

	assert.True(t, report.Hit)
	assert.Equal(t, 1, report.Offset)
	assert.Equal(t, 4, report.Width)
	assert.Nil(t, report.Handle)

	entries, err := m.Entries(ctx, "u1")
	require.NoError(t, err)
	// page records plus the untouched entry outside the page
	assert.Len(t, entries, 6)

	snap, err := m.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "9", "8", "7", "6"}, snap.IDs)

	resyncer.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_MissSavesSnapshotThenStartsResync(t *testing.T) {
	ctx := context.Background()
	m := mirror.New(cache.NewMemoryStore(), nil)
	resyncer := &mockResyncer{}
	engine := NewEngine(m, resyncer, nil)

	newPage := page("1", "2", "3", "4")
	require.NoError(t, m.SaveSnapshot(ctx, "u1", page("9", "8", "7", "6")))

	resyncer.On("Start", "u1", "token", newPage).Run(func(args mock.Arguments) {
		snap, err := m.Snapshot(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4"}, snap.IDs, "snapshot must be saved before the resync starts")
	}).Return(&syncworker.Handle{ID: "task-1"}, nil)

	report, err := engine.Run(ctx, "u1", "token", newPage)
	require.NoError(t, err)

	assert.False(t, report.Hit)
	require.NotNil(t, report.Handle)
	assert.Equal(t, "task-1", report.Handle.ID)
	assert.False(t, report.Joined)

	entries, err := m.Entries(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, entries, "a miss does not patch the mirror itself")

	resyncer.AssertExpectations(t)
}

func TestEngine_MissJoinsRunningResync(t *testing.T) {
	m := mirror.New(cache.NewMemoryStore(), nil)
	resyncer := &mockResyncer{}
	engine := NewEngine(m, resyncer, nil)

	running := &syncworker.Handle{ID: "running"}
	resyncer.On("Start", "u1", "token", mock.Anything).Return(running, syncworker.ErrSyncInProgress)

	report, err := engine.Run(context.Background(), "u1", "token", page("1", "2"))
	require.NoError(t, err)

	assert.True(t, report.Joined)
	assert.Same(t, running, report.Handle)
}

func TestEngine_MissResyncStartFailure(t *testing.T) {
	m := mirror.New(cache.NewMemoryStore(), nil)
	resyncer := &mockResyncer{}
	engine := NewEngine(m, resyncer, nil)

	resyncer.On("Start", "u1", "token", mock.Anything).Return(nil, syncworker.ErrRegistryClosed)

	_, err := engine.Run(context.Background(), "u1", "token", page("1", "2", "3"))
	assert.True(t, errors.Is(err, syncworker.ErrRegistryClosed))
}
