package syncworker

import (
	"encoding/json"

	"mangasync/internal/models"
)

// Event is a message on a handle's stream. Exactly one terminal event
// (ErrorEvent or FinishedEvent) ends every stream.
type Event interface {
	Name() string
	terminal() bool
}

// ItemEvent reports one bookmark written to the mirror.
type ItemEvent struct {
	Record models.BookmarkRecord `json:"record"`
}

// PushEvent reports the outcome of one external tracking push.
type PushEvent struct {
	StoryID string `json:"story_id"`
	MalID   string `json:"mal_id,omitempty"`
	Chapter string `json:"chapter,omitempty"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorEvent ends a stream that failed or was cancelled.
type ErrorEvent struct {
	Reason string `json:"reason"`
}

// FinishedEvent ends a stream that ran to completion.
type FinishedEvent struct {
	Items  int `json:"items"`
	Failed int `json:"failed"`
}

func (ItemEvent) Name() string     { return "item" }
func (PushEvent) Name() string     { return "push" }
func (ErrorEvent) Name() string    { return "error" }
func (FinishedEvent) Name() string { return "finished" }

func (ItemEvent) terminal() bool     { return false }
func (PushEvent) terminal() bool     { return false }
func (ErrorEvent) terminal() bool    { return true }
func (FinishedEvent) terminal() bool { return true }

// MarshalEvent renders an event as {"type": ..., "data": ...}.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data Event  `json:"data"`
	}{Type: ev.Name(), Data: ev})
}
