// Package geocode turns free-text addresses into coordinates through the
// Google Geocoding API, with a read-through cache in front so repeated
// addresses cost one provider call.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"motofrete/internal/geo"
)

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 10 * time.Second

// Geocoder resolves an address to a point. Implementations return an
// error when the address cannot be found; the HTTP layer reports that as
// a validation failure, never as an internal error.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

// Google is the production geocoder. City/state/country are appended to
// bare street addresses, matching how operators type them.
type Google struct {
	apiKey  string
	baseURL string
	city    string
	state   string
	country string
	cache   Cache
	http    *http.Client
	logger  *zap.Logger
}

// NewGoogle builds a geocoder. cache may not be nil; use NewMemoryCache
// when no shared cache is configured.
func NewGoogle(apiKey, baseURL, city, state, country string, timeout time.Duration, cache Cache, logger *zap.Logger) *Google {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Google{
		apiKey:  apiKey,
		baseURL: baseURL,
		city:    city,
		state:   state,
		country: country,
		cache:   cache,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (g *Google) Geocode(ctx context.Context, address string) (geo.Point, error) {
	full := g.fullAddress(address)
	key := strings.ToLower(strings.TrimSpace(full))

	if p, ok := g.cache.Get(ctx, key); ok {
		return p, nil
	}

	params := url.Values{}
	params.Set("address", full)
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return geo.Point{}, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("geocode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("geocode: http %d", resp.StatusCode)
	}
	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return geo.Point{}, fmt.Errorf("geocode: decode: %w", err)
	}
	if body.Status != "OK" || len(body.Results) == 0 {
		return geo.Point{}, fmt.Errorf("geocode: status %q for %q", body.Status, address)
	}

	loc := body.Results[0].Geometry.Location
	p := geo.Point{Lat: loc.Lat, Lng: loc.Lng}
	g.cache.Set(ctx, key, p)
	g.logger.Debug("geocoded address",
		zap.String("address", address),
		zap.Float64("lat", p.Lat),
		zap.Float64("lng", p.Lng))
	return p, nil
}

func (g *Google) fullAddress(address string) string {
	parts := []string{strings.TrimSpace(address)}
	for _, p := range []string{g.city, g.state, g.country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
