// Package predict learns per-tenant demand patterns from delivered
// orders and produces the hybrid forecast that combines that history
// with the live situation.
package predict

import (
	"context"
	"time"

	"go.uber.org/zap"

	"motofrete/internal/model"
	"motofrete/internal/store"
)

const (
	// HistoryWeeks is how far back the training pass looks.
	HistoryWeeks = 4

	// MinSamplesReliable is the day count below which a pattern slot
	// is treated as noise rather than history.
	MinSamplesReliable = 3

	// SafetyFactor pads the courier recommendation by 20%.
	SafetyFactor = 1.2

	// Defaults used when a slot has volume but no timing samples.
	DefaultPrepMin  = 15.0
	DefaultRouteMin = 30.0
	DefaultCycleMin = 30.0

	maxPrepMin  = 120.0
	maxRouteMin = 180.0

	// routeReturnFactor turns the one-way delivery time into a cycle.
	routeReturnFactor = 1.5

	liveWindow = 2 * time.Hour
)

// Predictor owns training and forecasting for all tenants.
type Predictor struct {
	store  *store.Store
	logger *zap.Logger
}

// New builds a predictor.
func New(s *store.Store, logger *zap.Logger) *Predictor {
	return &Predictor{store: s, logger: logger}
}

// TrainResult reports one training pass, in wire form.
type TrainResult struct {
	Sucesso            bool `json:"sucesso"`
	PadroesAtualizados int  `json:"padroes_atualizados"`
	PedidosAnalisados  int  `json:"pedidos_analisados"`
}

type slotSamples struct {
	dayCounts []int
	prepMin   []float64
	routeMin  []float64
}

type slotKey struct {
	weekday int
	hour    int
}

// Train rebuilds the tenant's demand patterns from the delivered
// orders of the last four weeks. Orders are bucketed by the weekday
// and hour they were created; volume is averaged over the distinct
// dates seen in each slot so a busy Friday does not inflate Mondays.
func (p *Predictor) Train(ctx context.Context, tenantID string, now time.Time) (*TrainResult, error) {
	cutoff := now.Add(-HistoryWeeks * 7 * 24 * time.Hour)
	orders, err := p.store.DeliveredCreatedSince(ctx, tenantID, cutoff)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return &TrainResult{Sucesso: true}, nil
	}

	slots := map[slotKey]*slotSamples{}
	perDate := map[slotKey]map[string]int{}

	slot := func(k slotKey) *slotSamples {
		s, ok := slots[k]
		if !ok {
			s = &slotSamples{}
			slots[k] = s
			perDate[k] = map[string]int{}
		}
		return s
	}

	for _, o := range orders {
		k := slotKey{
			weekday: model.WeekdayFromTime(o.CreatedAt),
			hour:    o.CreatedAt.Hour(),
		}
		s := slot(k)
		perDate[k][o.CreatedAt.Format("2006-01-02")]++

		if o.ReadyAt != nil {
			prep := o.ReadyAt.Sub(o.CreatedAt).Minutes()
			if prep > 0 && prep < maxPrepMin {
				s.prepMin = append(s.prepMin, prep)
			}
		}
		if o.ReadyAt != nil && o.DeliveredAt != nil {
			route := o.DeliveredAt.Sub(*o.ReadyAt).Minutes()
			if route > 0 && route < maxRouteMin {
				s.routeMin = append(s.routeMin, route*routeReturnFactor)
			}
		}
	}

	for k, dates := range perDate {
		for _, n := range dates {
			slots[k].dayCounts = append(slots[k].dayCounts, n)
		}
	}

	updated := 0
	for k, s := range slots {
		if len(s.dayCounts) == 0 {
			continue
		}
		avgOrders := meanInts(s.dayCounts)

		existing, err := p.store.GetPattern(ctx, tenantID, k.weekday, k.hour)
		if err != nil {
			return nil, err
		}

		prep := DefaultPrepMin
		route := DefaultRouteMin
		if existing != nil {
			prep = existing.AvgPrepMin
			route = existing.AvgRouteMin
		}
		if len(s.prepMin) > 0 {
			prep = mean(s.prepMin)
		}
		if len(s.routeMin) > 0 {
			route = mean(s.routeMin)
		}

		pattern := &model.DemandPattern{
			TenantID:            tenantID,
			Weekday:             k.weekday,
			Hour:                k.hour,
			AvgOrdersPerHour:    avgOrders,
			AvgPrepMin:          prep,
			AvgRouteMin:         route,
			RecommendedCouriers: RecommendedCouriers(avgOrders, route),
			Samples:             len(s.dayCounts),
			UpdatedAt:           now,
		}
		if err := p.store.UpsertPattern(ctx, pattern); err != nil {
			return nil, err
		}
		updated++
	}

	p.logger.Info("demand patterns updated",
		zap.String("tenant_id", tenantID),
		zap.Int("slots", updated),
		zap.Int("orders", len(orders)))

	return &TrainResult{
		Sucesso:            true,
		PadroesAtualizados: updated,
		PedidosAnalisados:  len(orders),
	}, nil
}

// TrainAll runs the training pass for every tenant, for the scheduler.
// Per-tenant failures are logged and skipped.
func (p *Predictor) TrainAll(ctx context.Context, now time.Time) {
	ids, err := p.store.ListTenantIDs(ctx)
	if err != nil {
		p.logger.Error("list tenants for training", zap.Error(err))
		return
	}
	for _, id := range ids {
		if _, err := p.Train(ctx, id, now); err != nil {
			p.logger.Error("training pass failed",
				zap.String("tenant_id", id), zap.Error(err))
		}
	}
}

// RecommendedCouriers applies the safety-padded staffing formula:
// orders per hour over per-courier capacity, rounded half-up.
func RecommendedCouriers(ordersPerHour, routeMin float64) int {
	if routeMin <= 0 {
		routeMin = DefaultRouteMin
	}
	capacity := 60 / routeMin
	if capacity <= 0 || ordersPerHour <= 0 {
		return 1
	}
	n := int(ordersPerHour/capacity*SafetyFactor + 0.5)
	if n < 1 {
		return 1
	}
	return n
}

// PatternsDump is the full learned history, in wire form.
type PatternsDump struct {
	TotalPadroes int          `json:"total_padroes"`
	Padroes      []PatternRow `json:"padroes"`
}

type PatternRow struct {
	DiaSemana           int     `json:"dia_semana"`
	DiaNome             string  `json:"dia_nome"`
	Hora                int     `json:"hora"`
	MediaPedidosHora    float64 `json:"media_pedidos_hora"`
	MediaTempoPreparo   float64 `json:"media_tempo_preparo"`
	MediaTempoRota      float64 `json:"media_tempo_rota"`
	MotoboysRecomendados int    `json:"motoboys_recomendados"`
	Amostras            int     `json:"amostras"`
}

// Patterns returns every learned slot for the tenant, weekday then
// hour order.
func (p *Predictor) Patterns(ctx context.Context, tenantID string) (*PatternsDump, error) {
	patterns, err := p.store.ListPatterns(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	dump := &PatternsDump{TotalPadroes: len(patterns), Padroes: []PatternRow{}}
	for _, pat := range patterns {
		dump.Padroes = append(dump.Padroes, PatternRow{
			DiaSemana:            pat.Weekday,
			DiaNome:              model.WeekdayName(pat.Weekday),
			Hora:                 pat.Hour,
			MediaPedidosHora:     pat.AvgOrdersPerHour,
			MediaTempoPreparo:    pat.AvgPrepMin,
			MediaTempoRota:       pat.AvgRouteMin,
			MotoboysRecomendados: pat.RecommendedCouriers,
			Amostras:             pat.Samples,
		})
	}
	return dump, nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanInts(xs []int) float64 {
	var sum int
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}
