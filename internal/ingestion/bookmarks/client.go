// Package bookmarks fetches the user's bookmark list from the remote source.
package bookmarks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mangasync/internal/models"
)

const (
	rateLimit = 5
	rateBurst = 10

	maxRetries   = 3
	initialDelay = 1 * time.Second
	maxDelay     = 16 * time.Second

	// Upper bound when walking pages without an all-bookmarks endpoint.
	maxPages = 500
)

// ErrMissingUserToken is returned before any request when the remote
// user token is empty.
var ErrMissingUserToken = errors.New("user data is required")

// Client talks to the remote bookmark endpoints with rate limiting and retry.
type Client struct {
	pageURL     string
	allURL      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger

	// overridable in tests
	initialDelay time.Duration
}

// NewClient creates a bookmark client. allURL may be empty, in which case
// FetchAll walks every page of pageURL.
func NewClient(pageURL, allURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		pageURL:     pageURL,
		allURL:      allURL,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:       logger,
		initialDelay: initialDelay,
	}
}

// remoteResponse covers both the page and the full-list payloads. The remote
// sends totalPages as a string on some accounts.
type remoteResponse struct {
	Result     string                  `json:"result,omitempty"`
	Bookmarks  []models.BookmarkRecord `json:"bookmarks"`
	Page       flexInt                 `json:"page"`
	TotalPages flexInt                 `json:"totalPages"`
}

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", b, err)
	}
	*f = flexInt(n)
	return nil
}

// FetchPage returns one page of the user's bookmarks.
func (c *Client) FetchPage(ctx context.Context, token string, page int) (*models.BookmarkPage, error) {
	if token == "" {
		return nil, ErrMissingUserToken
	}
	if page < 1 {
		page = 1
	}

	form := url.Values{}
	form.Set("user_data", token)
	form.Set("page", strconv.Itoa(page))

	var resp remoteResponse
	if err := c.doRequest(ctx, c.pageURL, form, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch bookmark page %d: %w", page, err)
	}

	out := &models.BookmarkPage{
		Bookmarks:  resp.Bookmarks,
		Page:       int(resp.Page),
		TotalPages: int(resp.TotalPages),
	}
	if out.Page == 0 {
		out.Page = page
	}
	return out, nil
}

// FetchAll returns the user's complete bookmark list.
func (c *Client) FetchAll(ctx context.Context, token string) ([]models.BookmarkRecord, error) {
	if token == "" {
		return nil, ErrMissingUserToken
	}
	if c.allURL == "" {
		return c.fetchAllPages(ctx, token)
	}

	form := url.Values{}
	form.Set("user_data", token)

	var resp remoteResponse
	if err := c.doRequest(ctx, c.allURL, form, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch all bookmarks: %w", err)
	}
	return resp.Bookmarks, nil
}

func (c *Client) fetchAllPages(ctx context.Context, token string) ([]models.BookmarkRecord, error) {
	var all []models.BookmarkRecord

	for page := 1; page <= maxPages; page++ {
		p, err := c.FetchPage(ctx, token, page)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Bookmarks...)

		if len(p.Bookmarks) == 0 || page >= p.TotalPages {
			break
		}
	}

	c.logger.Debug("[Bookmarks] fetched all pages", "count", len(all))
	return all, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, form url.Values, result interface{}) error {
	var lastErr error
	delay := c.initialDelay
	body := form.Encode()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", "MangaSync/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries && ctx.Err() == nil {
				c.logger.Warn("[Bookmarks] request failed, retrying",
					"attempt", attempt+1,
					"max_retries", maxRetries,
					"delay", delay,
					"error", err,
				)
				if err := sleep(ctx, delay); err != nil {
					return err
				}
				delay = minDuration(delay*2, maxDelay)
				continue
			}
			return fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
		}

		retry, err := decode(resp, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == maxRetries {
			return err
		}

		c.logger.Warn("[Bookmarks] retrying",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = minDuration(delay*2, maxDelay)
	}

	return fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
}

// decode reads the response and reports whether a failure is worth retrying.
func decode(resp *http.Response, result interface{}) (bool, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return shouldRetry(resp.StatusCode), fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Result string          `json:"result"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Result != "" && envelope.Result != "ok" {
		return false, fmt.Errorf("API error: %s", strings.Trim(string(envelope.Data), `"`))
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return false, nil
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
