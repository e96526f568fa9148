package models

import (
	"strings"
	"time"
)

// MangaCacheEntry is the locally mirrored view of one bookmark.
type MangaCacheEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Link        string `json:"link"`
	LastChapter string `json:"last_chapter"`
	LastRead    string `json:"last_read"`
	BmData      string `json:"bm_data"`
	Image       string `json:"image"`
	LastUpdate  string `json:"last_update"`
}

// NewMangaCacheEntry derives the cache entry for a bookmark record.
func NewMangaCacheEntry(b BookmarkRecord) MangaCacheEntry {
	return MangaCacheEntry{
		ID:          b.StoryID,
		Name:        b.Name,
		Link:        b.StoryLink,
		LastChapter: b.LatestChapterID(),
		LastRead:    b.CurrentChapterID(),
		BmData:      b.BmData,
		Image:       b.Image,
		LastUpdate:  b.LastUpdated,
	}
}

// Fields returns the entry as a partial update for the cache store.
func (e MangaCacheEntry) Fields() map[string]any {
	return map[string]any{
		"id":           e.ID,
		"name":         e.Name,
		"link":         e.Link,
		"last_chapter": e.LastChapter,
		"last_read":    e.LastRead,
		"bm_data":      e.BmData,
		"image":        e.Image,
		"last_update":  e.LastUpdate,
	}
}

// Identifier mirrors BookmarkRecord.Identifier for cached entries.
func (e MangaCacheEntry) Identifier() string {
	return lastSegment(e.Link, "/")
}

// LastReadNumber extracts the chapter number from a chapter id such as "chapter-12.5".
func (e MangaCacheEntry) LastReadNumber() string {
	if e.LastRead == "" {
		return ""
	}
	return lastSegment(e.LastRead, "-")
}

// BookmarkSnapshot is the persisted copy of the last observed first page.
type BookmarkSnapshot struct {
	IDs     []string  `json:"ids"`
	TakenAt time.Time `json:"taken_at"`
}

// Len is the snapshot width.
func (s *BookmarkSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.IDs)
}

// String is used in log lines only.
func (s *BookmarkSnapshot) String() string {
	if s == nil {
		return "[]"
	}
	return "[" + strings.Join(s.IDs, ",") + "]"
}
