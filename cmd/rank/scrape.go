package rank

import (
	"fmt"
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

// DefaultScrapeURL is the plain web search endpoint used in scrape mode.
const DefaultScrapeURL = "https://www.google.com/search"

// ScrapeCounter extracts result counts from the search result page itself.
// It exists for runs without API quota; it rotates the User-Agent per
// request and treats the anti-bot challenge page as a rate-limit signal.
type ScrapeCounter struct {
	// BaseURL is overridable for tests; defaults to DefaultScrapeURL.
	BaseURL string
	// Client is overridable for tests.
	Client *http.Client
}

var resultCountPattern = regexp.MustCompile(`\d[\d,]*`)

// Count fetches the result page and parses the "#result-stats" line.
func (c *ScrapeCounter) Count(query string) (int, error) {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultScrapeURL
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", "zh-TW")

	req, err := http.NewRequest(http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("User-Agent", useragent.Random())
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return 0, apierr.NewRateLimitError(fmt.Sprintf("search page returned %d", resp.StatusCode))
	}
	// The challenge page redirects to /sorry/ with a 200.
	if strings.Contains(resp.Request.URL.Path, "/sorry") {
		return 0, apierr.NewRateLimitError("redirected to anti-bot challenge page")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("search page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to parse result page: %w", err)
	}

	if isChallengerPage(doc) {
		return 0, apierr.NewRateLimitError("anti-bot challenge page detected")
	}

	stats := strings.TrimSpace(doc.Find("#result-stats").First().Text())
	if stats == "" {
		// No stats line at all: empty result set, a valid zero.
		return 0, nil
	}

	return parseResultCount(stats)
}

// isChallengerPage detects the "unusual traffic" interstitial.
func isChallengerPage(doc *goquery.Document) bool {
	if doc.Find("form#captcha-form").Length() > 0 {
		return true
	}
	body := doc.Find("body").Text()
	return strings.Contains(body, "unusual traffic") ||
		strings.Contains(body, "異常流量")
}

// parseResultCount pulls the first number out of a stats line such as
// "About 1,230,000 results (0.52 seconds)" or "約有 1,230,000 項結果".
func parseResultCount(stats string) (int, error) {
	match := resultCountPattern.FindString(stats)
	if match == "" {
		return 0, nil
	}
	count, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("unparseable result count in %q: %w", stats, err)
	}
	return count, nil
}
