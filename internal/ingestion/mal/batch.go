package mal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mangasync/internal/ingestion/malsync"
	"mangasync/internal/mirror"
	"mangasync/internal/models"
	"mangasync/internal/syncworker"
)

// ErrNoBookmarks is returned when the user has nothing cached to push.
var ErrNoBookmarks = errors.New("no bookmarks found")

// Pusher sends one progress update.
type Pusher interface {
	Push(ctx context.Context, malID, chapter string) Result
}

// Enricher resolves the MyAnimeList url of a story.
type Enricher interface {
	Fetch(ctx context.Context, userID, identifier string, opts malsync.FetchOptions) *models.EnrichmentEntry
}

// BatchRunner pushes every cached bookmark of a user in the background.
type BatchRunner struct {
	registry  *syncworker.Registry
	pusher    Pusher
	enricher  Enricher
	mirror    *mirror.Mirror
	itemDelay time.Duration
	logger    *slog.Logger
}

func NewBatchRunner(registry *syncworker.Registry, pusher Pusher, enricher Enricher, m *mirror.Mirror, itemDelay time.Duration, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{
		registry:  registry,
		pusher:    pusher,
		enricher:  enricher,
		mirror:    m,
		itemDelay: itemDelay,
		logger:    logger,
	}
}

// Start snapshots the user's cached entries and pushes them one by one with
// a fixed pause between items. A failed item is reported and the batch moves
// on.
func (b *BatchRunner) Start(ctx context.Context, userID string) (*syncworker.Handle, error) {
	entries, err := b.mirror.Entries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoBookmarks
	}

	return b.registry.Start(userID, models.SyncKindExternal, func(ctx context.Context, h *syncworker.Handle) error {
		started := time.Now()
		for i, entry := range entries {
			if i > 0 {
				if err := sleep(ctx, b.itemDelay); err != nil {
					return err
				}
			}
			h.Emit(b.pushOne(ctx, userID, entry))
		}

		s := h.Status()
		b.logger.Info("[MAL] batch finished",
			"user_id", userID,
			"task_id", h.ID,
			"pushed", s.Items,
			"failed", s.Failed,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return ctx.Err()
	})
}

func (b *BatchRunner) pushOne(ctx context.Context, userID string, entry models.MangaCacheEntry) syncworker.PushEvent {
	ev := syncworker.PushEvent{StoryID: entry.ID}

	identifier := entry.Identifier()
	chapter := entry.LastReadNumber()
	if identifier == "" || chapter == "" {
		ev.Skipped = true
		ev.Error = "missing identifier or chapter"
		return ev
	}
	ev.Chapter = chapter

	opts := malsync.DefaultFetchOptions()
	opts.Overwrite = true
	enrichment := b.enricher.Fetch(ctx, userID, identifier, opts)
	malID := enrichment.MalID()
	if malID == "" {
		ev.Skipped = true
		ev.Error = "no MyAnimeList entry"
		return ev
	}
	ev.MalID = malID

	result := b.pusher.Push(ctx, malID, chapter)
	if !result.Success {
		ev.Error = result.Error
		b.logger.Warn("[MAL] push failed", "user_id", userID, "story", identifier, "error", result.Error)
		return ev
	}
	ev.Success = true
	return ev
}
