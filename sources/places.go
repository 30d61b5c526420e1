package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DefaultPlacesURL is the Google Places text search endpoint.
const DefaultPlacesURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

type placesResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// PlacesClient looks up attractions.
type PlacesClient struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
}

// NewPlacesClient creates a client; an empty baseURL selects DefaultPlacesURL.
func NewPlacesClient(f *Fetcher, baseURL, apiKey string) *PlacesClient {
	if baseURL == "" {
		baseURL = DefaultPlacesURL
	}
	return &PlacesClient{fetcher: f, baseURL: baseURL, apiKey: apiKey}
}

// TopAttractions returns up to limit distinct place names for city.
func (c *PlacesClient) TopAttractions(ctx context.Context, city string, limit int) ([]string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, &FetchError{Source: "places", Err: fmt.Errorf("city is required")}
	}
	q := url.Values{}
	q.Set("query", "top places to visit in "+city)
	q.Set("key", c.apiKey)

	var resp placesResponse
	if err := c.fetcher.GetJSON(ctx, "places", c.baseURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "OK" && resp.Status != "ZERO_RESULTS" {
		return nil, &FetchError{Source: "places", Err: fmt.Errorf("api status %s", resp.Status)}
	}

	seen := make(map[string]struct{}, limit)
	names := make([]string, 0, limit)
	for _, r := range resp.Results {
		if len(names) == limit {
			break
		}
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, &FetchError{Source: "places", Err: ErrNoData}
	}
	return names, nil
}
