package models

// EnrichmentEntry is third-party metadata for one story identifier.
// UpToDate is written once and never overwritten.
type EnrichmentEntry struct {
	Score       *float64 `json:"score,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Description string   `json:"description,omitempty"`
	Titles      []Title  `json:"titles,omitempty"`
	URL         string   `json:"url,omitempty"`
	MalURL      string   `json:"malUrl,omitempty"`
	AniURL      string   `json:"aniUrl,omitempty"`
	UpToDate    *bool    `json:"up_to_date,omitempty"`
}

type Title struct {
	Type  string `json:"type"`
	Title string `json:"title"`
}

// HasScore is the "populated" test used by the enrichment cache.
func (e *EnrichmentEntry) HasScore() bool {
	return e != nil && e.Score != nil
}

// Fields returns the provider-owned fields as a partial update.
// UpToDate is excluded, it only goes through SetFieldOnce.
func (e *EnrichmentEntry) Fields() map[string]any {
	fields := map[string]any{
		"imageUrl":    e.ImageURL,
		"description": e.Description,
		"url":         e.URL,
	}
	if e.Score != nil {
		fields["score"] = *e.Score
	}
	if len(e.Titles) > 0 {
		fields["titles"] = e.Titles
	}
	if e.MalURL != "" {
		fields["malUrl"] = e.MalURL
	}
	if e.AniURL != "" {
		fields["aniUrl"] = e.AniURL
	}
	return fields
}

// MalID is the last segment of the MyAnimeList url.
func (e *EnrichmentEntry) MalID() string {
	if e == nil || e.MalURL == "" {
		return ""
	}
	return lastSegment(e.MalURL, "/")
}

// UserSettings are the per-user toggles the engine honours.
type UserSettings struct {
	FetchMalImage bool `json:"fetch_mal_image"`
}
