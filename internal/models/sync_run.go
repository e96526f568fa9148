package models

import "time"

const (
	SyncKindResync   = "resync"
	SyncKindExternal = "external"

	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
	SyncStatusCancelled = "cancelled"
)

// SyncRun is one background task execution, persisted for the status endpoint.
type SyncRun struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string     `gorm:"not null;index" json:"user_id"`
	Kind         string     `gorm:"not null" json:"kind"`
	Status       string     `gorm:"not null" json:"status"`
	ItemCount    int        `json:"item_count"`
	FailedCount  int        `json:"failed_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "bookmark_sync_runs"
}
