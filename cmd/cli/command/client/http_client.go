package client

// http_client.go = talks to the mangasync HTTP API on behalf of the CLI.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mangasync/internal/microservices/http-api/dto"
	"mangasync/internal/models"
)

const userTokenHeader = "X-User-Data"

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
	body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (Status: %d)", e.Message, e.StatusCode)
}

// StreamEvent is one server-sent event of a sync stream.
type StreamEvent struct {
	Name string
	Data json.RawMessage
}

// defines the HTTP client structure and methods
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	token      string
	userData   string
}

// constructor for HTTP client
func NewHTTPClient(apiURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// set the API bearer token
func (c *HTTPClient) SetToken(token string) {
	c.token = token
}

// set the remote bookmark source token sent as X-User-Data
func (c *HTTPClient) SetUserData(userData string) {
	c.userData = userData
}

func (c *HTTPClient) Bookmarks(page int) (*dto.BookmarkPageResponse, error) {
	var result dto.BookmarkPageResponse
	err := c.do(http.MethodGet, "/bookmarks?page="+strconv.Itoa(page), nil, http.StatusOK, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Cache() (*dto.CachedBookmarkListResponse, error) {
	var result dto.CachedBookmarkListResponse
	if err := c.do(http.MethodGet, "/bookmarks/cache", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Resync starts a full resync. A sync already running is reported through
// the response with Message "sync already in progress".
func (c *HTTPClient) Resync() (*dto.SyncStartedResponse, error) {
	return c.start("/bookmarks/resync")
}

func (c *HTTPClient) ExternalSync() (*dto.SyncStartedResponse, error) {
	return c.start("/bookmarks/external-sync")
}

func (c *HTTPClient) start(path string) (*dto.SyncStartedResponse, error) {
	var result dto.SyncStartedResponse
	err := c.do(http.MethodPost, path, nil, http.StatusAccepted, &result)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		// 409 still carries the running task
		return &result, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) SyncStatus() (*dto.SyncStatusResponse, error) {
	var result dto.SyncStatusResponse
	if err := c.do(http.MethodGet, "/bookmarks/sync/status", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Enrichment(identifier string, overwrite bool) (*models.EnrichmentEntry, error) {
	q := url.Values{}
	q.Set("overwrite", strconv.FormatBool(overwrite))

	var result models.EnrichmentEntry
	path := "/enrichment/" + url.PathEscape(identifier) + "?" + q.Encode()
	if err := c.do(http.MethodGet, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) Settings() (*models.UserSettings, error) {
	var result models.UserSettings
	if err := c.do(http.MethodGet, "/settings", nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) UpdateSettings(fetchMalImage bool) (*models.UserSettings, error) {
	var result models.UserSettings
	body := dto.SettingsRequest{FetchMalImage: &fetchMalImage}
	if err := c.do(http.MethodPut, "/settings", body, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WatchSync follows the event stream of a sync task until the server closes
// it or ctx is cancelled. fn is called for every event.
func (c *HTTPClient) WatchSync(ctx context.Context, kind string, fn func(StreamEvent)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/bookmarks/sync/events?kind="+url.QueryEscape(kind), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// the stream outlives the default client timeout
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	return readEvents(resp.Body, fn)
}

// readEvents parses the "event:" / "data:" framing written by the server.
func readEvents(r io.Reader, fn func(StreamEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current StreamEvent
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.Name != "" || len(data) > 0 {
				current.Data = json.RawMessage(strings.Join(data, "\n"))
				fn(current)
			}
			current, data = StreamEvent{}, nil
		case strings.HasPrefix(line, "event:"):
			current.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if current.Name != "" || len(data) > 0 {
		current.Data = json.RawMessage(strings.Join(data, "\n"))
		fn(current)
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.userData != "" {
		req.Header.Set(userTokenHeader, c.userData)
	}
	return req, nil
}

func (c *HTTPClient) do(method, path string, body any, wantStatus int, result any) error {
	req, err := c.newRequest(context.Background(), method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // Ensure the response body is closed

	if resp.StatusCode != wantStatus {
		apiErr := readError(resp)
		if resp.StatusCode == http.StatusConflict && result != nil {
			// conflict bodies are decoded as well, the caller decides
			json.Unmarshal(apiErr.body, result)
		}
		return apiErr
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// readError pulls "error" or "message" out of a failed response.
func readError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status, body: body}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			apiErr.Message = payload.Error
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
	}
	return apiErr
}
