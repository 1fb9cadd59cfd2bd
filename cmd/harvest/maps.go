package harvest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"formosa/internal/apierr"
	"formosa/internal/keyring"
)

// DefaultMapsURL is the Google Maps Platform Places API base URL.
const DefaultMapsURL = "https://maps.googleapis.com/maps/api"

// MapsSource finds photos through the Places API: a text search resolves
// the attraction to a place, and the place's photo references become
// photo media URLs.
type MapsSource struct {
	Keys    *keyring.Ring
	BaseURL string
	Client  *http.Client
}

func (s *MapsSource) Name() string { return "maps" }

func (s *MapsSource) baseURL() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return DefaultMapsURL
}

func (s *MapsSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

type placeSearchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		PlaceID string `json:"place_id"`
	} `json:"results"`
}

type placeDetailsResponse struct {
	Status string `json:"status"`
	Result struct {
		Photos []struct {
			PhotoReference string `json:"photo_reference"`
		} `json:"photos"`
	} `json:"result"`
}

// Search resolves the attraction to its first place match and returns
// photo media URLs for up to limit of its photos.
func (s *MapsSource) Search(attractionName string, limit int) ([]string, error) {
	key := s.Keys.Next()

	placeID, err := s.findPlace(attractionName, key)
	if err != nil {
		return nil, err
	}
	if placeID == "" {
		return nil, nil
	}

	refs, err := s.photoReferences(placeID, key)
	if err != nil {
		return nil, err
	}
	if len(refs) > limit {
		refs = refs[:limit]
	}

	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		params := url.Values{}
		params.Set("maxwidth", "1600")
		params.Set("photoreference", ref)
		params.Set("key", key)
		urls = append(urls, s.baseURL()+"/place/photo?"+params.Encode())
	}
	return urls, nil
}

func (s *MapsSource) findPlace(attractionName, key string) (string, error) {
	params := url.Values{}
	params.Set("query", attractionName+" 台灣")
	params.Set("language", "zh-TW")
	params.Set("key", key)

	var parsed placeSearchResponse
	if err := s.getJSON("/place/textsearch/json", params, &parsed); err != nil {
		return "", err
	}
	if err := checkPlacesStatus(parsed.Status); err != nil {
		return "", err
	}
	if len(parsed.Results) == 0 {
		return "", nil
	}
	return parsed.Results[0].PlaceID, nil
}

func (s *MapsSource) photoReferences(placeID, key string) ([]string, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "photo")
	params.Set("key", key)

	var parsed placeDetailsResponse
	if err := s.getJSON("/place/details/json", params, &parsed); err != nil {
		return nil, err
	}
	if err := checkPlacesStatus(parsed.Status); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(parsed.Result.Photos))
	for _, photo := range parsed.Result.Photos {
		if photo.PhotoReference != "" {
			refs = append(refs, photo.PhotoReference)
		}
	}
	return refs, nil
}

func (s *MapsSource) getJSON(path string, params url.Values, out any) error {
	resp, err := s.client().Get(s.baseURL() + path + "?" + params.Encode())
	if err != nil {
		return fmt.Errorf("places request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return apierr.NewRateLimitError(fmt.Sprintf("places returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("places returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read places response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse places response: %w", err)
	}
	return nil
}

func checkPlacesStatus(status string) error {
	switch status {
	case "OK", "ZERO_RESULTS", "":
		return nil
	case "OVER_QUERY_LIMIT":
		return apierr.NewRateLimitError("places query limit exceeded")
	default:
		return fmt.Errorf("places returned status %s", status)
	}
}
