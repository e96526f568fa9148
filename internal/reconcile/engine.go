package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mangasync/internal/mirror"
	"mangasync/internal/models"
	"mangasync/internal/syncworker"
)

// Resyncer starts the background full rebuild on a MISS.
type Resyncer interface {
	Start(userID, token string, seed []models.BookmarkRecord) (*syncworker.Handle, error)
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	Result
	// Handle is the background resync started (or joined) on a MISS.
	Handle *syncworker.Handle
	// Joined is true when the MISS attached to a resync already running.
	Joined bool
}

type Engine struct {
	mirror   *mirror.Mirror
	resyncer Resyncer
	logger   *slog.Logger
}

func NewEngine(m *mirror.Mirror, resyncer Resyncer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{mirror: m, resyncer: resyncer, logger: logger}
}

// Run reconciles a freshly fetched first page against the stored snapshot.
//
// On a HIT every record of the page is upserted and the snapshot replaced
// once all writes succeeded. On a MISS the snapshot is replaced first and a
// background resync is started; Run does not wait for it.
func (e *Engine) Run(ctx context.Context, userID, token string, page []models.BookmarkRecord) (*Report, error) {
	snap, err := e.mirror.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	var cached []string
	if snap != nil {
		cached = snap.IDs
	}

	result := Reconcile(models.StoryIDs(page), cached)
	report := &Report{Result: result}

	if result.Hit {
		e.logger.Debug("reconcile_hit",
			"user_id", userID,
			"offset", result.Offset,
			"width", result.Width,
		)

		var errs []error
		for _, record := range page {
			if err := e.mirror.Upsert(ctx, userID, record); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return nil, fmt.Errorf("patch mirror: %w", errors.Join(errs...))
		}

		if err := e.mirror.SaveSnapshot(ctx, userID, page); err != nil {
			return nil, err
		}
		return report, nil
	}

	e.logger.Info("reconcile_miss", "user_id", userID, "page_size", len(page), "cached_size", len(cached))

	if err := e.mirror.SaveSnapshot(ctx, userID, page); err != nil {
		return nil, err
	}

	h, err := e.resyncer.Start(userID, token, page)
	switch {
	case errors.Is(err, syncworker.ErrSyncInProgress):
		report.Joined = true
	case err != nil:
		return nil, fmt.Errorf("start resync: %w", err)
	}
	report.Handle = h
	return report, nil
}
