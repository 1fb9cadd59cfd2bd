package harvest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"formosa/internal/apierr"
	"formosa/internal/useragent"
)

// DefaultFlickrURL is the Flickr REST endpoint.
const DefaultFlickrURL = "https://api.flickr.com/services/rest/"

// DefaultFlickrSearchURL is the public search page used when the API
// yields nothing.
const DefaultFlickrSearchURL = "https://www.flickr.com/search/"

// staticPhotoPattern matches photo URLs embedded in the search page markup.
var staticPhotoPattern = regexp.MustCompile(`https?://[a-z0-9.]*staticflickr\.com/[^\s"'\\]+\.jpg`)

// FlickrSource finds image URLs through the Flickr photo search API,
// falling back to scraping the public search page when the API returns
// nothing useful.
type FlickrSource struct {
	APIKey string
	// BaseURL is overridable for tests; defaults to DefaultFlickrURL.
	BaseURL string
	// SearchPageURL is overridable for tests.
	SearchPageURL string
	// Client is overridable for tests.
	Client *http.Client
}

func (s *FlickrSource) Name() string { return "flickr" }

func (s *FlickrSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 20 * time.Second}
}

type flickrResponse struct {
	Stat    string `json:"stat"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Photos  struct {
		Photo []flickrPhoto `json:"photo"`
	} `json:"photos"`
}

type flickrPhoto struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Server string `json:"server"`
	Farm   int    `json:"farm"`
	URLO   string `json:"url_o"`
	URLC   string `json:"url_c"`
	URLM   string `json:"url_m"`
}

// bestURL prefers the original size, then large, then medium, and falls
// back to constructing the CDN URL from the photo's parts.
func (p flickrPhoto) bestURL() string {
	switch {
	case p.URLO != "":
		return p.URLO
	case p.URLC != "":
		return p.URLC
	case p.URLM != "":
		return p.URLM
	}
	if p.ID == "" || p.Secret == "" || p.Server == "" {
		return ""
	}
	return fmt.Sprintf("https://farm%d.staticflickr.com/%s/%s_%s.jpg",
		p.Farm, p.Server, p.ID, p.Secret)
}

// Search tries progressively broader query variants against the API and
// scrapes the public search page as a last resort.
func (s *FlickrSource) Search(attractionName string, limit int) ([]string, error) {
	variants := []string{
		attractionName + " Taiwan",
		attractionName + " 台灣",
		attractionName,
	}

	for _, query := range variants {
		urls, err := s.apiSearch(query, limit)
		if err != nil {
			if apierr.Retryable(err) {
				return nil, err
			}
			slog.Warn("Flickr API search failed", "query", query, "error", err)
			continue
		}
		if len(urls) > 0 {
			return urls, nil
		}
	}

	slog.Info("Flickr API found nothing, scraping search page", "name", attractionName)
	return s.scrapeSearch(attractionName+" Taiwan", limit)
}

func (s *FlickrSource) apiSearch(query string, limit int) ([]string, error) {
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = DefaultFlickrURL
	}

	params := url.Values{}
	params.Set("method", "flickr.photos.search")
	params.Set("api_key", s.APIKey)
	params.Set("text", query)
	params.Set("per_page", strconv.Itoa(limit*2))
	params.Set("sort", "relevance")
	params.Set("content_type", "1")
	params.Set("media", "photos")
	params.Set("safe_search", "1")
	params.Set("extras", "url_o,url_c,url_m")
	params.Set("format", "json")
	params.Set("nojsoncallback", "1")

	resp, err := s.client().Get(baseURL + "?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("flickr request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierr.NewRateLimitError("flickr returned 429")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flickr returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read flickr response: %w", err)
	}

	var parsed flickrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse flickr response: %w", err)
	}
	if parsed.Stat != "ok" {
		return nil, fmt.Errorf("flickr error %d: %s", parsed.Code, parsed.Message)
	}

	var urls []string
	for _, photo := range parsed.Photos.Photo {
		if len(urls) >= limit {
			break
		}
		if u := photo.bestURL(); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// scrapeSearch pulls photo URLs straight out of the public search page,
// both from img tags and from URLs embedded in script blocks.
func (s *FlickrSource) scrapeSearch(query string, limit int) ([]string, error) {
	searchURL := s.SearchPageURL
	if searchURL == "" {
		searchURL = DefaultFlickrSearchURL
	}

	req, err := http.NewRequest(http.MethodGet, searchURL+"?text="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", useragent.Random())
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("flickr search page request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flickr search page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read flickr search page: %w", err)
	}

	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		u = normalizePhotoURL(u)
		if u == "" || seen[u] || len(urls) >= limit {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	html := string(body)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
			if src, ok := sel.Attr("src"); ok {
				add(src)
			}
		})
	}
	// Script blocks carry photo URLs with escaped slashes.
	for _, match := range staticPhotoPattern.FindAllString(strings.ReplaceAll(html, `\/`, "/"), -1) {
		add(match)
	}
	return urls, nil
}

// normalizePhotoURL keeps only staticflickr photo URLs, fixing up
// protocol-relative references and escaped slashes.
func normalizePhotoURL(u string) string {
	u = strings.ReplaceAll(u, `\/`, "/")
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if !strings.Contains(u, "staticflickr.com") || !strings.HasSuffix(u, ".jpg") {
		return ""
	}
	return u
}
