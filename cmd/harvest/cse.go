package harvest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"formosa/internal/apierr"
	"formosa/internal/cache"
	"formosa/internal/keyring"
	"formosa/internal/ratelimit"
)

// DefaultCSEURL is the Custom Search JSON API endpoint.
const DefaultCSEURL = "https://www.googleapis.com/customsearch/v1"

// csePageSize is the API maximum per request.
const csePageSize = 10

// cseMaxStart is the last start offset the API accepts; results beyond
// the first hundred are not available.
const cseMaxStart = 91

// CSESource finds image URLs through the Custom Search JSON API image
// search, paginating ten results at a time.
type CSESource struct {
	Keys     *keyring.Ring
	EngineID string
	// BaseURL is overridable for tests; defaults to DefaultCSEURL.
	BaseURL string
	// Client is overridable for tests.
	Client *http.Client
	// Pacer spaces out page requests. Nil disables pacing.
	Pacer *ratelimit.Pacer
	// Cache holds previously answered searches. Nil disables caching.
	Cache *cache.DB
}

func (s *CSESource) Name() string { return "cse" }

type cseResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
	} `json:"error"`
}

// Search pages through image results until it has limit usable URLs or
// the API runs out of pages. Results are cached per query so an
// interrupted harvest does not re-spend quota on its second pass.
func (s *CSESource) Search(attractionName string, limit int) ([]string, error) {
	if s.Cache == nil {
		return s.fetchAll(attractionName, limit)
	}
	key := fmt.Sprintf("cse|%s|%d", attractionName, limit)
	return cache.GetOrFetch(s.Cache, cache.ImageSearchTable, key, func() ([]string, error) {
		return s.fetchAll(attractionName, limit)
	})
}

func (s *CSESource) fetchAll(attractionName string, limit int) ([]string, error) {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = DefaultCSEURL
	}
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	query := attractionName + " 台灣 景點"
	var urls []string
	for start := 1; start <= cseMaxStart && len(urls) < limit; start += csePageSize {
		if s.Pacer != nil {
			s.Pacer.Pace()
		}

		links, err := s.fetchPage(client, baseURL, query, start)
		if err != nil {
			return nil, err
		}
		if len(links) == 0 {
			break
		}
		for _, link := range links {
			if isImageURL(link) {
				urls = append(urls, link)
			}
		}
	}

	if len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

func (s *CSESource) fetchPage(client *http.Client, baseURL, query string, start int) ([]string, error) {
	params := url.Values{}
	params.Set("key", s.Keys.Next())
	params.Set("cx", s.EngineID)
	params.Set("q", query)
	params.Set("searchType", "image")
	params.Set("num", strconv.Itoa(csePageSize))
	params.Set("start", strconv.Itoa(start))
	params.Set("safe", "active")
	params.Set("imgSize", "large")
	params.Set("cr", "countryTW")
	params.Set("gl", "tw")

	resp, err := client.Get(baseURL + "?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("image search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image search response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, apierr.NewRateLimitError("image search returned 429")
	case http.StatusForbidden:
		var parsed cseResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error.Status == "RESOURCE_EXHAUSTED" {
			return nil, apierr.NewQuotaError("image search quota exhausted")
		}
		return nil, fmt.Errorf("image search returned 403: %s", string(body))
	case http.StatusServiceUnavailable:
		return nil, apierr.NewRateLimitError("image search returned 503")
	default:
		return nil, fmt.Errorf("image search returned status %d", resp.StatusCode)
	}

	var parsed cseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse image search response: %w", err)
	}

	links := make([]string, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	return links, nil
}

// isImageURL keeps only links whose path names an image file, dropping
// viewer pages the engine sometimes returns.
func isImageURL(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
