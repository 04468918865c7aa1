// Package geo provides the pure coordinate math used by clustering and
// stop ordering. No I/O happens here.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within coordinate bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Centroid returns the arithmetic mean of the points. Sufficient at
// neighborhood scale; returns the zero point for an empty slice.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lng: lng / n}
}

// NearestDistance returns the minimum haversine distance in km from p to
// any of the route points. Returns +Inf for an empty route.
func NearestDistance(p Point, route []Point) float64 {
	min := math.Inf(1)
	for _, r := range route {
		if d := Haversine(p, r); d < min {
			min = d
		}
	}
	return min
}

// RouteLength returns the total straight-line length in km of the path
// visiting the points in order.
func RouteLength(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1], points[i])
	}
	return total
}

// EncodePolyline encodes the points with the Google polyline algorithm
// (1e5 precision, delta-encoded), the format map widgets draw directly.
func EncodePolyline(points []Point) string {
	var out []byte
	var prevLat, prevLng int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * 1e5))
		lng := int64(math.Round(p.Lng * 1e5))
		out = encodeSigned(out, lat-prevLat)
		out = encodeSigned(out, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return string(out)
}

func encodeSigned(dst []byte, v int64) []byte {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		dst = append(dst, byte(0x20|(u&0x1f))+63)
		u >>= 5
	}
	return append(dst, byte(u)+63)
}
