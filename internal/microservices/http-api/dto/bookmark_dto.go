package dto

import (
	"mangasync/internal/models"
	"mangasync/internal/syncworker"
)

// ReconcileOutcome describes what loading page 1 did to the mirror.
type ReconcileOutcome struct {
	Hit    bool   `json:"hit"`
	Offset int    `json:"offset,omitempty"`
	Width  int    `json:"width,omitempty"`
	SyncID string `json:"sync_id,omitempty"`
	Joined bool   `json:"joined,omitempty"`
}

type BookmarkPageResponse struct {
	Bookmarks  []models.BookmarkRecord `json:"bookmarks"`
	Page       int                     `json:"page"`
	TotalPages int                     `json:"totalPages"`
	Reconcile  *ReconcileOutcome       `json:"reconcile,omitempty"`
}

// CachedBookmark is one exported mirror entry with its enrichment.
type CachedBookmark struct {
	models.MangaCacheEntry
	Enrichment *models.EnrichmentEntry `json:"enrichment,omitempty"`
}

type CachedBookmarkListResponse struct {
	Items []CachedBookmark `json:"items"`
	Total int              `json:"total"`
}

type SyncStartedResponse struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type SyncStatusResponse struct {
	Active  []syncworker.Status `json:"active"`
	Latest  []syncworker.Status `json:"latest"`
	History []models.SyncRun    `json:"history"`
}

type SettingsRequest struct {
	FetchMalImage *bool `json:"fetch_mal_image" binding:"required"`
}
