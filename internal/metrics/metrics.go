// Package metrics computes the live operational figures shown on the
// dispatch dashboard. Everything here is a pure read over the store;
// windows are 24 h for time averages and 1 h for volume.
package metrics

import (
	"context"
	"math"
	"time"

	"motofrete/internal/model"
	"motofrete/internal/store"
)

// Window bounds. Samples outside these ranges are operator mistakes
// (order created yesterday, scanned today) and would wreck the means.
const (
	prepWindow  = 24 * time.Hour
	routeWindow = 24 * time.Hour
	maxPrepMin  = 120.0
	maxRouteMin = 180.0

	// ReturnLegFactor scales the one-way delivery time into a full
	// cycle. A heuristic carried over from operations, not a measurement.
	ReturnLegFactor = 1.5

	// minSamples below which an average is reported as unknown.
	minSamples = 2

	// DefaultCapacityPerCourier is used when no route data exists yet:
	// two deliveries per courier-hour.
	DefaultCapacityPerCourier = 2.0
)

// Metrics reads live figures for one store.
type Metrics struct {
	store *store.Store
}

// New builds the metrics reader.
func New(s *store.Store) *Metrics { return &Metrics{store: s} }

// AvgPrepMin is the mean created→ready time over the last 24 h,
// optionally narrowed by preparation type. Returns nil with fewer than
// two usable samples.
func (m *Metrics) AvgPrepMin(ctx context.Context, tenantID string, prepType *model.PrepType, now time.Time) (*float64, int, error) {
	orders, err := m.store.OrdersWithReadySince(ctx, tenantID, now.Add(-prepWindow), prepType)
	if err != nil {
		return nil, 0, err
	}
	var times []float64
	for _, o := range orders {
		if o.ReadyAt == nil {
			continue
		}
		min := o.ReadyAt.Sub(o.CreatedAt).Minutes()
		if min > 0 && min < maxPrepMin {
			times = append(times, min)
		}
	}
	return mean(times), len(times), nil
}

// AvgRouteMin is the mean ready→delivered time over the last 24 h,
// scaled by the return-leg factor. Returns nil with fewer than two
// usable samples.
func (m *Metrics) AvgRouteMin(ctx context.Context, tenantID string, now time.Time) (*float64, int, error) {
	orders, err := m.store.DeliveredWithReadySince(ctx, tenantID, now.Add(-routeWindow))
	if err != nil {
		return nil, 0, err
	}
	var times []float64
	for _, o := range orders {
		if o.ReadyAt == nil || o.DeliveredAt == nil {
			continue
		}
		min := o.DeliveredAt.Sub(*o.ReadyAt).Minutes()
		if min > 0 && min < maxRouteMin {
			times = append(times, min*ReturnLegFactor)
		}
	}
	return mean(times), len(times), nil
}

// OrdersLastHour counts the tenant's volume in the trailing hour.
func (m *Metrics) OrdersLastHour(ctx context.Context, tenantID string, now time.Time) (int, error) {
	return m.store.CountOrdersCreatedSince(ctx, tenantID, now.Add(-time.Hour))
}

// CourierCounts returns (available, busy).
func (m *Metrics) CourierCounts(ctx context.Context, tenantID string) (int, int, error) {
	return m.store.CountCouriers(ctx, tenantID)
}

// RequiredCouriers estimates how many couriers the current volume
// needs, one cycle per courier at a time.
func RequiredCouriers(ordersPerHour float64, routeMin float64) int {
	if routeMin <= 0 {
		routeMin = 30
	}
	capacity := 60 / routeMin
	if capacity <= 0 || ordersPerHour <= 0 {
		return 1
	}
	n := int(ordersPerHour/capacity + 0.9)
	if n < 1 {
		return 1
	}
	return n
}

func mean(xs []float64) *float64 {
	if len(xs) < minSamples {
		return nil
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	avg := sum / float64(len(xs))
	return &avg
}

// Round1 rounds to one decimal for wire output.
func Round1(x float64) float64 { return math.Round(x*10) / 10 }

// Round1p rounds a nullable average.
func Round1p(x *float64) *float64 {
	if x == nil {
		return nil
	}
	r := Round1(*x)
	return &r
}
