// Package syncworker runs detached, per-user background tasks (full bookmark
// resync, external tracking push) and exposes their progress as event streams.
package syncworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mangasync/internal/models"
)

var (
	// ErrSyncInProgress is returned by Start together with the in-flight handle.
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrRegistryClosed = errors.New("sync registry is shut down")
)

// Task is the body of a background job. It must return when ctx is cancelled.
type Task func(ctx context.Context, h *Handle) error

type taskKey struct {
	userID string
	kind   string
}

// Registry owns every background task of the process. Tasks run on the
// registry's base context, never on the caller's, so they outlive the request
// that started them; Shutdown cancels them all.
type Registry struct {
	baseCtx  context.Context
	cancel   context.CancelFunc
	recorder Recorder
	logger   *slog.Logger

	mu     sync.Mutex
	active map[taskKey]*Handle
	latest map[taskKey]*Handle
	closed bool
	wg     sync.WaitGroup
}

func NewRegistry(recorder Recorder, logger *slog.Logger) *Registry {
	if recorder == nil {
		recorder = NewMemoryRecorder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		baseCtx:  ctx,
		cancel:   cancel,
		recorder: recorder,
		logger:   logger,
		active:   make(map[taskKey]*Handle),
		latest:   make(map[taskKey]*Handle),
	}
}

// Start runs task in the background unless the same user already has a task
// of that kind in flight, in which case the running handle is returned with
// ErrSyncInProgress so the caller can subscribe to it instead.
func (r *Registry) Start(userID, kind string, task Task) (*Handle, error) {
	key := taskKey{userID: userID, kind: kind}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if running, ok := r.active[key]; ok {
		r.mu.Unlock()
		return running, ErrSyncInProgress
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	h := newHandle(uuid.NewString(), userID, kind, cancel)
	r.active[key] = h
	r.latest[key] = h
	r.wg.Add(1)
	r.mu.Unlock()

	r.record(func(ctx context.Context) error {
		return r.recorder.RecordStart(ctx, &models.SyncRun{
			ID:        h.ID,
			UserID:    userID,
			Kind:      kind,
			Status:    models.SyncStatusRunning,
			StartedAt: h.StartedAt,
		})
	})

	r.logger.Info("sync_task_started", "task_id", h.ID, "user_id", userID, "kind", kind)
	go r.run(ctx, key, h, task)
	return h, nil
}

func (r *Registry) run(ctx context.Context, key taskKey, h *Handle, task Task) {
	defer r.wg.Done()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task panicked: %v", p)
			}
		}()
		return task(ctx, h)
	}()

	switch {
	case err == nil:
		s := h.Status()
		h.finish(models.SyncStatusCompleted, FinishedEvent{Items: s.Items, Failed: s.Failed})
	case ctx.Err() != nil:
		h.finish(models.SyncStatusCancelled, ErrorEvent{Reason: "cancelled"})
	default:
		h.finish(models.SyncStatusFailed, ErrorEvent{Reason: err.Error()})
	}
	h.cancel()

	r.mu.Lock()
	if r.active[key] == h {
		delete(r.active, key)
	}
	r.mu.Unlock()

	s := h.Status()
	r.record(func(ctx context.Context) error {
		return r.recorder.RecordFinish(ctx, &models.SyncRun{
			ID:           h.ID,
			UserID:       h.UserID,
			Kind:         h.Kind,
			Status:       s.Status,
			ItemCount:    s.Items,
			FailedCount:  s.Failed,
			ErrorMessage: s.Error,
			StartedAt:    s.StartedAt,
			FinishedAt:   s.FinishedAt,
		})
	})

	r.logger.Info("sync_task_finished",
		"task_id", h.ID,
		"user_id", h.UserID,
		"kind", h.Kind,
		"status", s.Status,
		"items", s.Items,
		"failed", s.Failed,
		"duration_ms", time.Since(h.StartedAt).Milliseconds(),
	)
}

// record writes run history on its own short-lived context; history is
// best-effort and never fails the task.
func (r *Registry) record(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		r.logger.Error("sync_run_record_failed", "error", err)
	}
}

// Active returns the in-flight task of that kind for the user.
func (r *Registry) Active(userID, kind string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.active[taskKey{userID: userID, kind: kind}]
	return h, ok
}

// Latest returns the in-flight task, or the most recent finished one.
func (r *Registry) Latest(userID, kind string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.latest[taskKey{userID: userID, kind: kind}]
	return h, ok
}

// History returns persisted runs for the user, newest first.
func (r *Registry) History(ctx context.Context, userID string, limit int) ([]models.SyncRun, error) {
	return r.recorder.Recent(ctx, userID, limit)
}

// Shutdown cancels every task and waits for them to exit or for ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("sync_registry_stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sync registry shutdown: %w", ctx.Err())
	}
}
