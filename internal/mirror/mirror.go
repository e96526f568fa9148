// Package mirror reads and writes the per-user bookmark mirror through the
// cache store.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"mangasync/internal/cache"
	"mangasync/internal/models"
)

// Mirror is the only writer of MangaCacheEntry, BookmarkSnapshot and the
// up_to_date flag.
type Mirror struct {
	store  cache.Store
	logger *slog.Logger
}

func New(store cache.Store, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{store: store, logger: logger}
}

func (m *Mirror) Store() cache.Store { return m.store }

// EnrichmentNamespace holds EnrichmentEntry documents for one user.
func EnrichmentNamespace(userID string) string {
	return cache.UserNamespace(userID, cache.NamespaceEnrichment)
}

func mangaNamespace(userID string) string {
	return cache.UserNamespace(userID, cache.NamespaceManga)
}

func bookmarkNamespace(userID string) string {
	return cache.UserNamespace(userID, cache.NamespaceBookmarks)
}

// Snapshot returns the last persisted first page, nil when none exists.
func (m *Mirror) Snapshot(ctx context.Context, userID string) (*models.BookmarkSnapshot, error) {
	var snap models.BookmarkSnapshot
	found, err := cache.Load(ctx, m.store, bookmarkNamespace(userID), cache.KeyFirstPage, &snap)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &snap, nil
}

// SaveSnapshot replaces the persisted first page wholesale.
func (m *Mirror) SaveSnapshot(ctx context.Context, userID string, page []models.BookmarkRecord) error {
	snap := models.BookmarkSnapshot{
		IDs:     models.StoryIDs(page),
		TakenAt: time.Now().UTC(),
	}
	if err := m.store.Set(ctx, bookmarkNamespace(userID), cache.KeyFirstPage, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Upsert writes the cache entry derived from record and records up_to_date
// the first time this story is seen.
func (m *Mirror) Upsert(ctx context.Context, userID string, record models.BookmarkRecord) error {
	key := record.Identifier()
	if key == "" {
		key = record.StoryID
	}
	if key == "" {
		return fmt.Errorf("bookmark %q has neither link nor story id", record.Name)
	}

	entry := models.NewMangaCacheEntry(record)
	if err := m.store.Update(ctx, mangaNamespace(userID), key, entry.Fields()); err != nil {
		return fmt.Errorf("upsert manga entry %s: %w", key, err)
	}

	written, err := m.store.SetFieldOnce(ctx, EnrichmentNamespace(userID), key, "up_to_date", record.IsUpToDate())
	if err != nil {
		return fmt.Errorf("set up_to_date %s: %w", key, err)
	}
	if written {
		m.logger.Debug("up_to_date_recorded", "user_id", userID, "story", key, "value", record.IsUpToDate())
	}
	return nil
}

// Entries returns every cached entry for the user ordered by identifier.
func (m *Mirror) Entries(ctx context.Context, userID string) ([]models.MangaCacheEntry, error) {
	all, err := cache.LoadAll[models.MangaCacheEntry](ctx, m.store, mangaNamespace(userID))
	if err != nil {
		return nil, fmt.Errorf("list manga entries: %w", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]models.MangaCacheEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, all[k])
	}
	return entries, nil
}

// Enrichment returns the cached enrichment entry, nil when absent.
func (m *Mirror) Enrichment(ctx context.Context, userID, identifier string) (*models.EnrichmentEntry, error) {
	var entry models.EnrichmentEntry
	found, err := cache.Load(ctx, m.store, EnrichmentNamespace(userID), identifier, &entry)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}

// AllEnrichment returns every enrichment entry for the user keyed by identifier.
func (m *Mirror) AllEnrichment(ctx context.Context, userID string) (map[string]models.EnrichmentEntry, error) {
	return cache.LoadAll[models.EnrichmentEntry](ctx, m.store, EnrichmentNamespace(userID))
}

// Settings returns the user's settings, falling back to defaults.
func (m *Mirror) Settings(ctx context.Context, userID string, defaults models.UserSettings) (models.UserSettings, error) {
	settings := defaults
	if _, err := cache.Load(ctx, m.store, cache.NamespaceSettings, userID, &settings); err != nil {
		return defaults, err
	}
	return settings, nil
}

func (m *Mirror) SaveSettings(ctx context.Context, userID string, settings models.UserSettings) error {
	return m.store.Set(ctx, cache.NamespaceSettings, userID, settings)
}
