package anilist

import (
	"html"
	"regexp"
	"strings"

	"mangasync/internal/models"
)

// MediaResponse wraps a single media item
type MediaResponse struct {
	Media MediaData `json:"Media"`
}

// MediaData represents a manga entry from AniList
type MediaData struct {
	ID           int        `json:"id"`
	IDMal        *int       `json:"idMal"`
	SiteURL      string     `json:"siteUrl"`
	Title        TitleData  `json:"title"`
	Description  *string    `json:"description"`
	CoverImage   CoverImage `json:"coverImage"`
	AverageScore *int       `json:"averageScore"` // 0-100
}

// TitleData contains title variants
type TitleData struct {
	English *string `json:"english"`
	Romaji  *string `json:"romaji"`
	Native  *string `json:"native"`
}

// CoverImage contains cover URLs
type CoverImage struct {
	ExtraLarge *string `json:"extraLarge"`
	Large      *string `json:"large"`
	Medium     *string `json:"medium"`
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// ToEnrichment maps an AniList media entry onto the enrichment document.
func ToEnrichment(media MediaData) models.EnrichmentEntry {
	entry := models.EnrichmentEntry{
		URL:    media.SiteURL,
		AniURL: media.SiteURL,
	}

	// Average rating (convert from 0-100 to 0-10)
	if media.AverageScore != nil {
		score := float64(*media.AverageScore) / 10.0
		entry.Score = &score
	}

	// Cover URL, largest first
	for _, u := range []*string{media.CoverImage.ExtraLarge, media.CoverImage.Large, media.CoverImage.Medium} {
		if u != nil && *u != "" {
			entry.ImageURL = *u
			break
		}
	}

	if media.Description != nil {
		entry.Description = CleanDescription(*media.Description)
	}

	addTitle := func(kind string, t *string) {
		if t != nil && *t != "" {
			entry.Titles = append(entry.Titles, models.Title{Type: kind, Title: *t})
		}
	}
	addTitle("Default", media.Title.Romaji)
	addTitle("English", media.Title.English)
	addTitle("Native", media.Title.Native)

	return entry
}

// CleanDescription removes HTML tags and decodes entities
func CleanDescription(desc string) string {
	cleaned := htmlTag.ReplaceAllString(desc, "")
	cleaned = html.UnescapeString(cleaned)
	return strings.TrimSpace(cleaned)
}
