// Package routing adapts the external driving-directions provider. Every
// operation degrades to a deterministic fallback when the provider fails,
// so callers never see routing errors. The client must not be invoked
// from inside a store transaction.
package routing

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

// RoadFactor scales straight-line distance into an estimated road
// distance for the fallback.
const RoadFactor = 1.4

// DefaultTimeout bounds one provider call.
const DefaultTimeout = 10 * time.Second

// Leg is one hop of a computed route.
type Leg struct {
	DistanceMeters  int `json:"distance_m"`
	DurationSeconds int `json:"duration_s"`
}

// Route is the drawable overview of a batch route.
type Route struct {
	Polyline string `json:"polyline"`
	Legs     []Leg  `json:"legs"`
}

// Client answers driving-distance and route-overview questions.
type Client interface {
	// DrivingDistanceMeters measures the road distance between two
	// points. Falls back to haversine × 1.4 on any provider failure.
	DrivingDistanceMeters(ctx context.Context, from, to geo.Point) float64

	// RoutePolyline fetches the overview polyline for driving from
	// start through the stops in the given order. Degrades to a
	// straight-line polyline; the overlay is cosmetic.
	RoutePolyline(ctx context.Context, start geo.Point, stops []geo.Point) *Route
}

// FallbackRoute is the provider-free route overview: the stops joined by
// straight lines.
func FallbackRoute(start geo.Point, stops []geo.Point) *Route {
	if len(stops) == 0 {
		return nil
	}
	pts := append([]geo.Point{start}, stops...)
	return &Route{Polyline: geo.EncodePolyline(pts)}
}

// Google calls the Google Directions API. Waypoint optimization is never
// requested: the provider reorders one-way streets incorrectly in our
// region, so the dispatcher chooses the stop order itself.
type Google struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewGoogle builds a Directions client. An empty apiKey yields a client
// that always answers with the fallback, which keeps dev setups working.
func NewGoogle(apiKey, baseURL string, timeout time.Duration, logger *zap.Logger) *Google {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com/maps/api/directions/json"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Google{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FallbackDistanceMeters is the deterministic stand-in for a failed
// provider call.
func FallbackDistanceMeters(from, to geo.Point) float64 {
	return geo.Haversine(from, to) * 1000 * RoadFactor
}

func (g *Google) DrivingDistanceMeters(ctx context.Context, from, to geo.Point) float64 {
	if g.apiKey == "" {
		return FallbackDistanceMeters(from, to)
	}
	resp, err := g.directions(ctx, from, to, nil)
	if err != nil {
		g.logger.Debug("directions call failed, using fallback distance",
			zap.Error(err))
		return FallbackDistanceMeters(from, to)
	}
	meters := 0
	for _, leg := range resp.Routes[0].Legs {
		meters += leg.Distance.Value
	}
	if meters <= 0 {
		return FallbackDistanceMeters(from, to)
	}
	return float64(meters)
}

func (g *Google) RoutePolyline(ctx context.Context, start geo.Point, stops []geo.Point) *Route {
	if len(stops) == 0 {
		return nil
	}
	if g.apiKey == "" {
		return FallbackRoute(start, stops)
	}
	last := stops[len(stops)-1]
	resp, err := g.directions(ctx, start, last, stops[:len(stops)-1])
	if err != nil {
		g.logger.Debug("route polyline call failed, using straight lines",
			zap.Error(err))
		return FallbackRoute(start, stops)
	}
	route := resp.Routes[0]
	out := &Route{Polyline: route.OverviewPolyline.Points}
	for _, leg := range route.Legs {
		out.Legs = append(out.Legs, Leg{
			DistanceMeters:  leg.Distance.Value,
			DurationSeconds: leg.Duration.Value,
		})
	}
	return out
}

type directionsResponse struct {
	Status string `json:"status"`
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// directions performs one provider call. Waypoints are passed in caller
// order, never with optimize:true.
func (g *Google) directions(ctx context.Context, origin, destination geo.Point, via []geo.Point) (*directionsResponse, error) {
	params := url.Values{}
	params.Set("origin", formatPoint(origin))
	params.Set("destination", formatPoint(destination))
	params.Set("mode", "driving")
	params.Set("language", "pt-BR")
	params.Set("key", g.apiKey)
	if len(via) > 0 {
		points := make([]string, len(via))
		for i, p := range via {
			points[i] = formatPoint(p)
		}
		params.Set("waypoints", strings.Join(points, "|"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions: http %d", resp.StatusCode)
	}
	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("directions: decode: %w", err)
	}
	if body.Status != "OK" || len(body.Routes) == 0 || len(body.Routes[0].Legs) == 0 {
		return nil, fmt.Errorf("directions: status %q", body.Status)
	}
	return &body, nil
}

func formatPoint(p geo.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
