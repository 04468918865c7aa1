package dispatch

import (
	"math"
	"sort"

	"motofrete/internal/geo"
	"motofrete/internal/model"
)

func orderPoint(o model.Order) geo.Point {
	return geo.Point{Lat: o.Lat, Lng: o.Lng}
}

func centroid(group []model.Order) geo.Point {
	pts := make([]geo.Point, len(group))
	for i, o := range group {
		pts[i] = orderPoint(o)
	}
	return geo.Centroid(pts)
}

// groupSameAddress partitions the queue into same-doorstep groups: for
// each unclaimed order, absorb every later order within 50 m of it.
// Input comes ready_at-ascending, so the seed of each group is its
// oldest order.
func groupSameAddress(orders []model.Order) [][]model.Order {
	var groups [][]model.Order
	used := make([]bool, len(orders))

	for i, seed := range orders {
		if used[i] {
			continue
		}
		group := []model.Order{seed}
		used[i] = true
		for j := i + 1; j < len(orders); j++ {
			if used[j] {
				continue
			}
			if geo.Haversine(orderPoint(seed), orderPoint(orders[j])) <= SameAddressKm {
				group = append(group, orders[j])
				used[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// mergeNearby greedily joins groups whose centroids sit within the
// cluster radius, as long as the combined size stays within the
// preferred load. Earlier groups (older ready_at seeds) absorb later
// ones.
func mergeNearby(groups [][]model.Order) [][]model.Order {
	if len(groups) <= 1 {
		return groups
	}
	var merged [][]model.Order
	used := make([]bool, len(groups))

	for i := range groups {
		if used[i] {
			continue
		}
		current := append([]model.Order(nil), groups[i]...)
		used[i] = true
		for j := i + 1; j < len(groups); j++ {
			if used[j] {
				continue
			}
			if len(current)+len(groups[j]) > PreferredPerCourier {
				continue
			}
			if geo.Haversine(centroid(current), centroid(groups[j])) <= ClusterRadiusKm {
				current = append(current, groups[j]...)
				used[j] = true
			}
		}
		merged = append(merged, current)
	}
	return merged
}

// splitOversize chops any group above the preferred load into chunks,
// closest-to-centroid first, so each chunk stays geographically tight.
func splitOversize(groups [][]model.Order) [][]model.Order {
	var out [][]model.Order
	for _, group := range groups {
		if len(group) <= PreferredPerCourier {
			out = append(out, group)
			continue
		}
		center := centroid(group)
		sorted := append([]model.Order(nil), group...)
		sort.Slice(sorted, func(a, b int) bool {
			da := geo.Haversine(orderPoint(sorted[a]), center)
			db := geo.Haversine(orderPoint(sorted[b]), center)
			if da != db {
				return da < db
			}
			return sorted[a].ID < sorted[b].ID
		})
		for start := 0; start < len(sorted); start += PreferredPerCourier {
			end := start + PreferredPerCourier
			if end > len(sorted) {
				end = len(sorted)
			}
			out = append(out, sorted[start:end])
		}
	}
	return out
}

// absorbOrphan places an unassigned order into the created batch whose
// route passes closest, provided the batch still has room. The order is
// inserted at the position that keeps the straight-line route shortest.
// Returns false when every batch is full.
func absorbOrphan(batches []*plannedBatch, orphan model.Order) bool {
	var target *plannedBatch
	best := math.Inf(1)
	for _, b := range batches {
		if len(b.orders) >= MaxAbsolute {
			continue
		}
		if d := geo.NearestDistance(orderPoint(orphan), b.routePoints()); d < best {
			best = d
			target = b
		}
	}
	if target == nil {
		return false
	}

	route := target.routePoints()
	bestPos, bestLen := 0, math.Inf(1)
	for pos := 0; pos <= len(route); pos++ {
		candidate := make([]geo.Point, 0, len(route)+1)
		candidate = append(candidate, route[:pos]...)
		candidate = append(candidate, orderPoint(orphan))
		candidate = append(candidate, route[pos:]...)
		if l := geo.RouteLength(candidate); l < bestLen {
			bestLen = l
			bestPos = pos
		}
	}

	orders := make([]model.Order, 0, len(target.orders)+1)
	orders = append(orders, target.orders[:bestPos]...)
	orders = append(orders, orphan)
	orders = append(orders, target.orders[bestPos:]...)
	target.orders = orders
	return true
}
