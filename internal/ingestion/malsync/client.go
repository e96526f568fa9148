// Package malsync resolves a bookmark identifier to third-party metadata:
// MALSync maps the identifier to MyAnimeList / AniList ids, then Jikan or
// AniList supply score, cover and titles.
package malsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"mangasync/internal/ingestion/anilist"
	"mangasync/internal/ingestion/jikan"
	"mangasync/internal/mirror"
	"mangasync/internal/models"
)

const (
	rateLimit = 2
	rateBurst = 4

	// MALSync page type for the bookmark source.
	pageType = "MangaNato"
)

// JikanAPI is the MyAnimeList metadata provider.
type JikanAPI interface {
	GetManga(ctx context.Context, malID int) (*jikan.Manga, error)
}

// AniListAPI is the AniList metadata provider.
type AniListAPI interface {
	GetMangaByID(ctx context.Context, id int) (*anilist.MediaData, error)
}

// FetchOptions tune one enrichment lookup.
type FetchOptions struct {
	// Overwrite fetches even when the user disabled enrichment.
	Overwrite bool
	// RetryCount is the number of extra attempts granted to 429 responses
	// and network errors.
	RetryCount int
	RetryDelay time.Duration
	// UseCache reads the cached entry first and writes the result back.
	UseCache bool
}

// DefaultFetchOptions returns overwrite=false, 3 retries, 2s delay, cache on.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		Overwrite:  false,
		RetryCount: 3,
		RetryDelay: 2 * time.Second,
		UseCache:   true,
	}
}

// Response is the MALSync page lookup payload.
type Response struct {
	Identifier string `json:"identifier"`
	Image      string `json:"image"`
	MalID      int    `json:"malId"`
	AniID      int    `json:"aniId"`
	Page       string `json:"page"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	URL        string `json:"url"`
	MalURL     string `json:"malUrl"`
	AniURL     string `json:"aniUrl"`
}

// Client looks up enrichment metadata. Failures never surface as errors:
// a failed lookup returns nil.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	jikan          JikanAPI
	anilist        AniListAPI
	mirror         *mirror.Mirror
	enabledDefault bool
	logger         *slog.Logger
}

// NewClient wires the lookup chain. enabledDefault is the fetch_mal_image
// value for users who never saved settings.
func NewClient(baseURL string, jikanAPI JikanAPI, anilistAPI AniListAPI, m *mirror.Mirror, enabledDefault bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     baseURL,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		jikan:          jikanAPI,
		anilist:        anilistAPI,
		mirror:         m,
		enabledDefault: enabledDefault,
		logger:         logger,
	}
}

// Fetch returns enrichment for identifier or nil.
//
// A cached entry with a score is returned without any network call. When the
// user disabled enrichment and Overwrite is false nothing is fetched. Only 429
// responses and network errors consume retry attempts; any other non-success
// status ends the lookup.
func (c *Client) Fetch(ctx context.Context, userID, identifier string, opts FetchOptions) *models.EnrichmentEntry {
	if identifier == "" {
		return nil
	}

	if opts.UseCache {
		cached, err := c.mirror.Enrichment(ctx, userID, identifier)
		if err != nil {
			c.logger.Warn("[MALSync] cache read failed", "identifier", identifier, "error", err)
		} else if cached.HasScore() {
			return cached
		}
	}

	if !opts.Overwrite && !c.enabled(ctx, userID) {
		return nil
	}

	for attempt := 0; attempt <= opts.RetryCount; attempt++ {
		status, page, err := c.lookup(ctx, identifier)
		if err != nil {
			if ctx.Err() != nil || attempt == opts.RetryCount {
				c.logger.Warn("[MALSync] lookup failed", "identifier", identifier, "attempts", attempt+1, "error", err)
				return nil
			}
			c.logger.Debug("[MALSync] lookup error, retrying", "identifier", identifier, "delay", opts.RetryDelay, "error", err)
			if sleep(ctx, opts.RetryDelay) != nil {
				return nil
			}
			continue
		}

		if status == http.StatusTooManyRequests && attempt < opts.RetryCount {
			c.logger.Warn("[MALSync] rate limited, retrying", "identifier", identifier, "delay", opts.RetryDelay)
			if sleep(ctx, opts.RetryDelay) != nil {
				return nil
			}
			continue
		}

		if status != http.StatusOK {
			c.logger.Warn("[MALSync] lookup rejected", "identifier", identifier, "status", status)
			return nil
		}
		if page == nil {
			return nil
		}

		entry := c.provider(ctx, page)
		if entry == nil {
			return nil
		}
		if page.MalURL != "" {
			entry.MalURL = page.MalURL
		}
		if page.AniURL != "" {
			entry.AniURL = page.AniURL
		}

		if opts.UseCache {
			if err := c.mirror.Store().Update(ctx, mirror.EnrichmentNamespace(userID), identifier, entry.Fields()); err != nil {
				c.logger.Warn("[MALSync] cache write failed", "identifier", identifier, "error", err)
			}
		}
		return entry
	}
	return nil
}

func (c *Client) enabled(ctx context.Context, userID string) bool {
	settings, err := c.mirror.Settings(ctx, userID, models.UserSettings{FetchMalImage: c.enabledDefault})
	if err != nil {
		c.logger.Warn("[MALSync] settings read failed", "user_id", userID, "error", err)
		return c.enabledDefault
	}
	return settings.FetchMalImage
}

// lookup performs one MALSync request. A non-nil error means the request
// never produced a response.
func (c *Client) lookup(ctx context.Context, identifier string) (int, *Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter error: %w", err)
	}

	endpoint := fmt.Sprintf("%s/page/%s/%s", c.baseURL, pageType, url.PathEscape(identifier))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "MangaSync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil, nil
	}

	var page Response
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return 0, nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, &page, nil
}

// provider prefers MyAnimeList, then AniList.
func (c *Client) provider(ctx context.Context, page *Response) *models.EnrichmentEntry {
	switch {
	case page.MalID > 0 && c.jikan != nil:
		m, err := c.jikan.GetManga(ctx, page.MalID)
		if err != nil {
			c.logger.Warn("[MALSync] jikan lookup failed", "mal_id", page.MalID, "error", err)
			return nil
		}
		entry := jikan.ToEnrichment(*m)
		return &entry
	case page.AniID > 0 && c.anilist != nil:
		media, err := c.anilist.GetMangaByID(ctx, page.AniID)
		if err != nil {
			c.logger.Warn("[MALSync] anilist lookup failed", "ani_id", page.AniID, "error", err)
			return nil
		}
		entry := anilist.ToEnrichment(*media)
		return &entry
	default:
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
