// Package jikan reads MyAnimeList manga metadata through the Jikan REST API.
package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"mangasync/internal/models"
)

const (
	// Jikan allows 3 requests per second
	rateLimit = 3
	rateBurst = 3
)

// Client performs single-attempt, rate limited Jikan requests.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type mangaResponse struct {
	Data Manga `json:"data"`
}

// Manga is the subset of the Jikan manga resource used for enrichment.
type Manga struct {
	MalID    int            `json:"mal_id"`
	URL      string         `json:"url"`
	Images   map[string]Img `json:"images"`
	Titles   []models.Title `json:"titles"`
	Score    *float64       `json:"score"`
	Synopsis *string        `json:"synopsis"`
}

type Img struct {
	ImageURL      string `json:"image_url"`
	LargeImageURL string `json:"large_image_url"`
}

// GetManga fetches /manga/{id}.
func (c *Client) GetManga(ctx context.Context, malID int) (*Manga, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	url := c.baseURL + "/manga/" + strconv.Itoa(malID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var out mangaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out.Data, nil
}

// ToEnrichment maps a Jikan manga onto the enrichment document.
func ToEnrichment(m Manga) models.EnrichmentEntry {
	entry := models.EnrichmentEntry{
		Score:  m.Score,
		Titles: m.Titles,
		URL:    m.URL,
		MalURL: m.URL,
	}
	if m.Synopsis != nil {
		entry.Description = *m.Synopsis
	}

	for _, format := range []string{"webp", "jpg"} {
		img, ok := m.Images[format]
		if !ok {
			continue
		}
		if img.LargeImageURL != "" {
			entry.ImageURL = img.LargeImageURL
			break
		}
		if img.ImageURL != "" {
			entry.ImageURL = img.ImageURL
			break
		}
	}
	return entry
}
