package models

import "strings"

// BookmarkRecord is one row of the user's remote bookmark list.
// Field names follow the remote JSON payload.
type BookmarkRecord struct {
	StoryID            string `json:"storyid"`
	NoteID             string `json:"noteid"`
	BmData             string `json:"bm_data"`
	Name               string `json:"note_story_name"`
	StoryLink          string `json:"link_story"`
	CurrentChapterLink string `json:"link_chapter_now"`
	LatestChapterLink  string `json:"link_chapter_last"`
	ChapterNumberNow   string `json:"chapter_numbernow,omitempty"`
	ChapterLastNumber  string `json:"chapterlastnumber,omitempty"`
	ChapterLastName    string `json:"chapterlastname,omitempty"`
	Image              string `json:"image"`
	LastUpdated        string `json:"chapterlastdateupdate"`

	// Display only, filled from the enrichment cache.
	UpToDate *bool `json:"up_to_date,omitempty"`
}

// BookmarkPage is the remote response for a single page of bookmarks.
type BookmarkPage struct {
	Bookmarks  []BookmarkRecord `json:"bookmarks"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
}

// Identifier is the last path segment of the story link. Cache entries and
// enrichment entries are keyed by it.
func (b BookmarkRecord) Identifier() string {
	return lastSegment(b.StoryLink, "/")
}

// CurrentChapterID resolves the "current chapter" link to a chapter id.
func (b BookmarkRecord) CurrentChapterID() string {
	return lastSegment(b.CurrentChapterLink, "/")
}

// LatestChapterID resolves the "latest chapter" link to a chapter id.
func (b BookmarkRecord) LatestChapterID() string {
	return lastSegment(b.LatestChapterLink, "/")
}

// IsUpToDate reports whether the user has read the latest chapter.
func (b BookmarkRecord) IsUpToDate() bool {
	return b.LatestChapterLink == b.CurrentChapterLink
}

// StoryIDs returns the ordered story ids of a page.
func StoryIDs(records []BookmarkRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.StoryID)
	}
	return ids
}

func lastSegment(s, sep string) string {
	s = strings.TrimRight(s, sep)
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+len(sep):]
	}
	return s
}
