package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chargelog/internal/core"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent = "chargelog/1.0"
)

// HTTPResolver queries a Nominatim-compatible search endpoint. The provider
// throttles anonymous callers and requires an identifying User-Agent; the
// spacing itself is enforced by Cache, not here.
type HTTPResolver struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

var _ Resolver = (*HTTPResolver)(nil)

func NewHTTPResolver(baseURL, userAgent string) *HTTPResolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPResolver{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (r *HTTPResolver) Lookup(ctx context.Context, query string) (core.Coordinates, bool, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return core.Coordinates{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return core.Coordinates{}, false, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Coordinates{}, false, fmt.Errorf("geocode provider returned %s", resp.Status)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return core.Coordinates{}, false, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return core.Coordinates{}, false, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return core.Coordinates{}, false, fmt.Errorf("parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return core.Coordinates{}, false, fmt.Errorf("parse longitude %q: %w", results[0].Lon, err)
	}
	return core.Coordinates{Lat: lat, Lon: lon}, true, nil
}
