package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"motofrete/internal/model"
)

const patternColumns = `id, tenant_id, weekday, hour, avg_orders_per_hour,
	avg_prep_min, avg_route_min, recommended_couriers, samples, updated_at`

// UpsertPattern writes one (tenant, weekday, hour) demand slot,
// replacing the previous values if the slot exists.
func (s *Store) UpsertPattern(ctx context.Context, p *model.DemandPattern) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE demand_patterns SET avg_orders_per_hour = ?, avg_prep_min = ?,
			avg_route_min = ?, recommended_couriers = ?, samples = ?, updated_at = ?
		WHERE tenant_id = ? AND weekday = ? AND hour = ?`),
		p.AvgOrdersPerHour, p.AvgPrepMin, p.AvgRouteMin,
		p.RecommendedCouriers, p.Samples, p.UpdatedAt,
		p.TenantID, p.Weekday, p.Hour)
	if err != nil {
		return fmt.Errorf("update pattern: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO demand_patterns (`+patternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.TenantID, p.Weekday, p.Hour, p.AvgOrdersPerHour,
		p.AvgPrepMin, p.AvgRouteMin, p.RecommendedCouriers, p.Samples,
		p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pattern: %w", err)
	}
	return nil
}

// GetPattern returns the slot for (weekday, hour), or nil when the
// predictor has not learned it yet.
func (s *Store) GetPattern(ctx context.Context, tenantID string, weekday, hour int) (*model.DemandPattern, error) {
	var p model.DemandPattern
	err := s.db.GetContext(ctx, &p, s.rebind(`
		SELECT `+patternColumns+` FROM demand_patterns
		WHERE tenant_id = ? AND weekday = ? AND hour = ?`),
		tenantID, weekday, hour)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern: %w", err)
	}
	return &p, nil
}

// ListPatterns dumps a tenant's learned slots in weekday/hour order.
func (s *Store) ListPatterns(ctx context.Context, tenantID string) ([]model.DemandPattern, error) {
	patterns := []model.DemandPattern{}
	err := s.db.SelectContext(ctx, &patterns, s.rebind(`
		SELECT `+patternColumns+` FROM demand_patterns
		WHERE tenant_id = ? ORDER BY weekday, hour`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	return patterns, nil
}
