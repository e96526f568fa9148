package syncworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mangasync/internal/mirror"
	"mangasync/internal/models"
)

// ErrEmptyRemoteList is returned when the full fetch yields nothing although
// the first page had bookmarks. The mirror is left as it was.
var ErrEmptyRemoteList = errors.New("remote returned an empty bookmark list")

// AllFetcher retrieves the user's complete remote bookmark list.
type AllFetcher interface {
	FetchAll(ctx context.Context, token string) ([]models.BookmarkRecord, error)
}

// Notifier receives coarse progress of a resync.
type Notifier interface {
	NotifySync(userID, status, message string)
}

const (
	NotifyProcessing = "processing"
	NotifySuccess    = "success"
	NotifyFailure    = "failure"
)

// Resyncer rebuilds a user's mirror from the full remote list in the background.
type Resyncer struct {
	registry *Registry
	fetcher  AllFetcher
	mirror   *mirror.Mirror
	notifier Notifier
	logger   *slog.Logger
}

func NewResyncer(registry *Registry, fetcher AllFetcher, m *mirror.Mirror, notifier Notifier, logger *slog.Logger) *Resyncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resyncer{
		registry: registry,
		fetcher:  fetcher,
		mirror:   m,
		notifier: notifier,
		logger:   logger,
	}
}

// Start launches a full resync. seed is the first page that triggered it and
// may be empty. A resync already running for the user is returned together
// with ErrSyncInProgress.
func (r *Resyncer) Start(userID, token string, seed []models.BookmarkRecord) (*Handle, error) {
	return r.registry.Start(userID, models.SyncKindResync, func(ctx context.Context, h *Handle) error {
		r.notify(userID, NotifyProcessing, "Synchronizing bookmarks")

		err := r.run(ctx, h, userID, token, len(seed))
		if err != nil {
			r.logger.Error("resync_failed", "user_id", userID, "task_id", h.ID, "error", err)
			r.notify(userID, NotifyFailure, err.Error())
			return err
		}

		r.notify(userID, NotifySuccess, fmt.Sprintf("Synchronized %d bookmarks", h.Status().Items))
		return nil
	})
}

func (r *Resyncer) run(ctx context.Context, h *Handle, userID, token string, seedLen int) error {
	records, err := r.fetcher.FetchAll(ctx, token)
	if err != nil {
		return fmt.Errorf("fetch all bookmarks: %w", err)
	}
	if len(records) == 0 && seedLen > 0 {
		return ErrEmptyRemoteList
	}

	r.logger.Info("resync_fetched", "user_id", userID, "task_id", h.ID, "count", len(records))

	var errs []error
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.mirror.Upsert(ctx, userID, record); err != nil {
			errs = append(errs, err)
			continue
		}
		h.Emit(ItemEvent{Record: record})
	}

	if len(errs) > 0 {
		return fmt.Errorf("write %d of %d bookmarks: %w", len(errs), len(records), errors.Join(errs...))
	}
	return nil
}

func (r *Resyncer) notify(userID, status, message string) {
	if r.notifier == nil {
		return
	}
	r.notifier.NotifySync(userID, status, message)
}
