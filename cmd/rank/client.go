package rank

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"formosa/internal/apierr"
	"formosa/internal/cache"
	"formosa/internal/keyring"
)

// DefaultSearchURL is the Custom Search JSON API endpoint.
const DefaultSearchURL = "https://www.googleapis.com/customsearch/v1"

// APICounter fetches result counts from the Custom Search JSON API,
// rotating API keys per request and caching responses.
type APICounter struct {
	Keys     *keyring.Ring
	EngineID string
	// BaseURL is overridable for tests; defaults to DefaultSearchURL.
	BaseURL string
	// Client is overridable for tests.
	Client *http.Client
	// Cache holds previously answered queries. Nil disables caching.
	Cache *cache.DB
}

type searchResponse struct {
	SearchInformation struct {
		TotalResults string `json:"totalResults"`
	} `json:"searchInformation"`
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
	} `json:"error"`
}

// Count returns the estimated total results for the query.
func (c *APICounter) Count(query string) (int, error) {
	if c.Cache == nil {
		return c.fetch(query)
	}
	return cache.GetOrFetch(c.Cache, cache.SearchCountTable, query, func() (int, error) {
		return c.fetch(query)
	})
}

func (c *APICounter) fetch(query string) (int, error) {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultSearchURL
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	params := url.Values{}
	params.Set("key", c.Keys.Next())
	params.Set("cx", c.EngineID)
	params.Set("q", query)
	params.Set("num", "1")

	resp, err := client.Get(baseURL + "?" + params.Encode())
	if err != nil {
		return 0, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read search response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return 0, apierr.NewRateLimitError("custom search returned 429")
	case http.StatusForbidden:
		// Daily quota exhaustion surfaces as 403 RESOURCE_EXHAUSTED.
		var parsed searchResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Status == "RESOURCE_EXHAUSTED" {
			return 0, apierr.NewQuotaError("custom search quota exhausted")
		}
		return 0, fmt.Errorf("custom search returned 403: %s", string(body))
	case http.StatusServiceUnavailable:
		return 0, apierr.NewRateLimitError("custom search returned 503")
	default:
		return 0, fmt.Errorf("custom search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse search response: %w", err)
	}

	total := parsed.SearchInformation.TotalResults
	if total == "" {
		// No totalResults means the engine found nothing; that is a valid
		// zero, not an error.
		return 0, nil
	}

	count, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("unparseable totalResults %q: %w", total, err)
	}
	return count, nil
}
