// Package anilist resolves AniList media ids to enrichment metadata.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Rate limiting: AniList allows ~90 requests per minute
	rateLimit = 1
	rateBurst = 5
)

// AniListClient handles GraphQL API requests with rate limiting. Each call is
// a single attempt; the enrichment layer owns the retry policy.
type AniListClient struct {
	apiURL      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient creates a new AniList API client
func NewClient(apiURL string) *AniListClient {
	return &AniListClient{
		apiURL:      apiURL,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GraphQLRequest represents a GraphQL query request
type GraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// GraphQLResponse represents a GraphQL response
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQLError represents a GraphQL error
type GraphQLError struct {
	Message string `json:"message"`
}

const mediaByIDQuery = `
query ($id: Int) {
	Media(id: $id, type: MANGA) {
		id
		idMal
		siteUrl
		title {
			english
			romaji
			native
		}
		description
		coverImage {
			extraLarge
			large
			medium
		}
		averageScore
	}
}
`

// GetMangaByID fetches a specific manga by ID
func (c *AniListClient) GetMangaByID(ctx context.Context, id int) (*MediaData, error) {
	variables := map[string]interface{}{
		"id": id,
	}

	var result MediaResponse
	if err := c.doRequest(ctx, mediaByIDQuery, variables, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch manga by ID: %w", err)
	}
	if result.Media.ID == 0 {
		return nil, fmt.Errorf("manga %d not found", id)
	}
	return &result.Media, nil
}

// doRequest performs a single rate limited GraphQL request
func (c *AniListClient) doRequest(ctx context.Context, query string, variables map[string]interface{}, result interface{}) error {
	bodyJSON, err := json.Marshal(GraphQLRequest{
		Query:     query,
		Variables: variables,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var gqlResp GraphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("failed to parse GraphQL response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		errMsgs := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			errMsgs[i] = e.Message
		}
		return fmt.Errorf("GraphQL errors: %v", errMsgs)
	}

	if err := json.Unmarshal(gqlResp.Data, result); err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}
	return nil
}
