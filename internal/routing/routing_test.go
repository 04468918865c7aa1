package routing

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"motofrete/internal/geo"
)

var (
	base = geo.Point{Lat: -21.2020, Lng: -47.8130}
	stop = geo.Point{Lat: -21.1700, Lng: -47.8100}
)

func TestFallbackDistanceMeters(t *testing.T) {
	want := geo.Haversine(base, stop) * 1000 * 1.4
	got := FallbackDistanceMeters(base, stop)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("FallbackDistanceMeters = %f, want %f", got, want)
	}
}

func TestDrivingDistanceFromProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("waypoints") != "" {
			t.Errorf("distance call must not carry waypoints, got %q", r.URL.Query().Get("waypoints"))
		}
		w.Write([]byte(`{"status":"OK","routes":[{"overview_polyline":{"points":"abc"},"legs":[{"distance":{"value":5200},"duration":{"value":780}}]}]}`))
	}))
	defer srv.Close()

	c := NewGoogle("test-key", srv.URL, time.Second, zap.NewNop())
	got := c.DrivingDistanceMeters(context.Background(), base, stop)
	if got != 5200 {
		t.Errorf("DrivingDistanceMeters = %f, want 5200", got)
	}
}

func TestDrivingDistanceFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"provider status not ok", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"OVER_QUERY_LIMIT","routes":[]}`))
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":`))
		}},
	}
	want := FallbackDistanceMeters(base, stop)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewGoogle("test-key", srv.URL, time.Second, zap.NewNop())
			if got := c.DrivingDistanceMeters(context.Background(), base, stop); got != want {
				t.Errorf("got %f, want fallback %f", got, want)
			}
		})
	}
}

func TestDrivingDistanceWithoutKey(t *testing.T) {
	c := NewGoogle("", "", time.Second, zap.NewNop())
	want := FallbackDistanceMeters(base, stop)
	if got := c.DrivingDistanceMeters(context.Background(), base, stop); got != want {
		t.Errorf("got %f, want fallback %f", got, want)
	}
}

func TestRoutePolyline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wp := r.URL.Query().Get("waypoints")
		if wp == "" {
			t.Error("expected waypoints for a multi-stop route")
		}
		for _, bad := range []string{"optimize"} {
			if len(wp) >= len(bad) && wp[:len(bad)] == bad {
				t.Errorf("waypoint optimization must never be requested, got %q", wp)
			}
		}
		w.Write([]byte(`{"status":"OK","routes":[{"overview_polyline":{"points":"poly123"},"legs":[{"distance":{"value":1000},"duration":{"value":120}},{"distance":{"value":800},"duration":{"value":95}}]}]}`))
	}))
	defer srv.Close()

	c := NewGoogle("test-key", srv.URL, time.Second, zap.NewNop())
	route := c.RoutePolyline(context.Background(), base, []geo.Point{stop, {Lat: -21.18, Lng: -47.80}})
	if route == nil {
		t.Fatal("expected a route")
	}
	if route.Polyline != "poly123" {
		t.Errorf("polyline = %q", route.Polyline)
	}
	if len(route.Legs) != 2 || route.Legs[1].DistanceMeters != 800 {
		t.Errorf("unexpected legs: %+v", route.Legs)
	}
}

func TestRoutePolylineDegradesToStraightLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	want := FallbackRoute(base, []geo.Point{stop})
	c := NewGoogle("test-key", srv.URL, time.Second, zap.NewNop())
	route := c.RoutePolyline(context.Background(), base, []geo.Point{stop})
	if route == nil || route.Polyline != want.Polyline {
		t.Errorf("expected straight-line fallback %+v, got %+v", want, route)
	}
	if len(route.Legs) != 0 {
		t.Errorf("fallback route should carry no legs, got %+v", route.Legs)
	}
}

func TestRoutePolylineEmptyStops(t *testing.T) {
	c := NewGoogle("", "", time.Second, zap.NewNop())
	if route := c.RoutePolyline(context.Background(), base, nil); route != nil {
		t.Errorf("expected nil route for no stops, got %+v", route)
	}
}
