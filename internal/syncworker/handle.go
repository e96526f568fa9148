package syncworker

import (
	"context"
	"sync"
	"time"

	"mangasync/internal/models"
)

// Handle is a running or finished background task. Events are kept for the
// lifetime of the handle so late subscribers get a full replay.
type Handle struct {
	ID        string
	UserID    string
	Kind      string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	events     []Event
	changed    chan struct{}
	closed     bool
	status     string
	items      int
	failed     int
	reason     string
	finishedAt time.Time
}

// Status is a point-in-time view of a handle.
type Status struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Items      int        `json:"items"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func newHandle(id, userID, kind string, cancel context.CancelFunc) *Handle {
	return &Handle{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
		changed:   make(chan struct{}),
		status:    models.SyncStatusRunning,
	}
}

// Emit appends a progress event. Terminal events are emitted by the registry
// only; Emit ignores them and anything sent after the stream closed.
func (h *Handle) Emit(ev Event) {
	if ev.terminal() {
		return
	}
	h.append(ev)
}

func (h *Handle) append(ev Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.events = append(h.events, ev)
	switch e := ev.(type) {
	case ItemEvent:
		h.items++
	case PushEvent:
		if e.Success {
			h.items++
		} else if !e.Skipped {
			h.failed++
		}
	}
	close(h.changed)
	h.changed = make(chan struct{})
	return true
}

func (h *Handle) finish(status string, terminal Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.events = append(h.events, terminal)
	h.closed = true
	h.status = status
	h.finishedAt = time.Now().UTC()
	if e, ok := terminal.(ErrorEvent); ok {
		h.reason = e.Reason
	}
	close(h.changed)
	h.mu.Unlock()

	close(h.done)
}

// Done is closed once the terminal event has been recorded.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the task. The stream ends with an ErrorEvent.
func (h *Handle) Cancel() { h.cancel() }

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Status{
		ID:        h.ID,
		UserID:    h.UserID,
		Kind:      h.Kind,
		Status:    h.status,
		Items:     h.items,
		Failed:    h.failed,
		Error:     h.reason,
		StartedAt: h.StartedAt,
	}
	if h.closed {
		finished := h.finishedAt
		s.FinishedAt = &finished
	}
	return s
}

// Events returns a copy of everything emitted so far.
func (h *Handle) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

// Subscribe streams every event from the beginning, then live ones, and
// closes the channel after the terminal event or when ctx ends.
func (h *Handle) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		next := 0
		for {
			h.mu.Lock()
			pending := h.events[next:len(h.events):len(h.events)]
			changed := h.changed
			closed := h.closed
			h.mu.Unlock()

			for _, ev := range pending {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			next += len(pending)
			if closed {
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
