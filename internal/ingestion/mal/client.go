// Package mal pushes reading progress to the MyAnimeList manga list.
package mal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimit = 1
	rateBurst = 2

	defaultErrorMessage = "No additional error message provided"
)

// Result is the outcome of one push. Push never returns a Go error; every
// failure is reported here.
type Result struct {
	Success bool            `json:"success"`
	Body    json.RawMessage `json:"body,omitempty"`
	Error   string          `json:"error,omitempty"`
	Status  int             `json:"status,omitempty"`
}

// Client updates num_chapters_read for one manga at a time.
type Client struct {
	listURL     string
	accessToken string
	maxRetries  int
	retryDelay  time.Duration
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a push client allowing maxRetries retries after the first
// attempt, each preceded by retryDelay.
func NewClient(listURL, accessToken string, maxRetries int, retryDelay time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		listURL:     listURL,
		accessToken: accessToken,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type pushRequest struct {
	MangaID         string `json:"manga_id"`
	NumChaptersRead string `json:"num_chapters_read"`
}

// Push sets the chapter count for malID. A non-success response is retried
// after the fixed delay until the attempts run out; a transport error ends
// the push at once.
func (c *Client) Push(ctx context.Context, malID, chapter string) Result {
	body, err := json.Marshal(pushRequest{MangaID: malID, NumChaptersRead: chapter})
	if err != nil {
		return Result{Error: fmt.Sprintf("Unexpected error: %v", err)}
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		status, respBody, err := c.send(ctx, body)
		if err != nil {
			return Result{Error: fmt.Sprintf("Unexpected error: %v", err)}
		}

		if status >= 200 && status < 300 {
			return Result{Success: true, Body: respBody, Status: status}
		}

		message := errorMessage(respBody)
		c.logger.Warn("[MAL] push attempt failed",
			"mal_id", malID,
			"attempt", attempt+1,
			"status", status,
			"message", message,
		)

		if attempt == c.maxRetries {
			return Result{
				Error:  fmt.Sprintf("Failed to update MAL: %s (Status: %d)", message, status),
				Status: status,
			}
		}

		c.logger.Info("[MAL] retrying push", "mal_id", malID, "delay", c.retryDelay)
		if err := sleep(ctx, c.retryDelay); err != nil {
			return Result{Error: fmt.Sprintf("Unexpected error: %v", err), Status: status}
		}
	}

	return Result{Error: "Failed to update MAL after multiple attempts."}
}

func (c *Client) send(ctx context.Context, body []byte) (int, []byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.listURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return defaultErrorMessage
	}
	if payload.Message != "" {
		return payload.Message
	}
	if payload.Error != "" {
		return payload.Error
	}
	return defaultErrorMessage
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
