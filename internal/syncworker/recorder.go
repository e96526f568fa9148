package syncworker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"mangasync/internal/models"
)

// Recorder persists background run history.
type Recorder interface {
	RecordStart(ctx context.Context, run *models.SyncRun) error
	RecordFinish(ctx context.Context, run *models.SyncRun) error
	Recent(ctx context.Context, userID string, limit int) ([]models.SyncRun, error)
}

// GormRecorder stores runs in the bookmark_sync_runs table.
type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

// Migrate creates or updates the bookmark_sync_runs table.
func (g *GormRecorder) Migrate() error {
	return g.db.AutoMigrate(&models.SyncRun{})
}

func (g *GormRecorder) RecordStart(ctx context.Context, run *models.SyncRun) error {
	if err := g.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record sync start: %w", err)
	}
	return nil
}

func (g *GormRecorder) RecordFinish(ctx context.Context, run *models.SyncRun) error {
	update := map[string]interface{}{
		"status":        run.Status,
		"item_count":    run.ItemCount,
		"failed_count":  run.FailedCount,
		"error_message": run.ErrorMessage,
		"finished_at":   run.FinishedAt,
	}

	if err := g.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", run.ID).
		Updates(update).Error; err != nil {
		return fmt.Errorf("record sync finish: %w", err)
	}
	return nil
}

func (g *GormRecorder) Recent(ctx context.Context, userID string, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	if err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	return runs, nil
}

// MemoryRecorder keeps run history in memory. Used by tests and the memory
// cache backend.
type MemoryRecorder struct {
	mu   sync.Mutex
	runs map[string]models.SyncRun
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runs: make(map[string]models.SyncRun)}
}

func (m *MemoryRecorder) RecordStart(_ context.Context, run *models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryRecorder) RecordFinish(_ context.Context, run *models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryRecorder) Recent(_ context.Context, userID string, limit int) ([]models.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var runs []models.SyncRun
	for _, run := range m.runs {
		if run.UserID == userID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
