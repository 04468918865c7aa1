package metrics

import (
	"context"
	"time"

	"motofrete/internal/model"
)

// Snapshot is the consolidated dashboard payload. Field names are the
// wire contract with the operator frontend and stay in Portuguese.
type Snapshot struct {
	Preparo           PrepSnapshot     `json:"preparo"`
	Rota              RouteSnapshot    `json:"rota"`
	Capacidade        CapacitySnapshot `json:"capacidade"`
	PedidosAguardando int              `json:"pedidos_aguardando"`
	Timestamp         time.Time        `json:"timestamp"`
}

type PrepSnapshot struct {
	MediaShortMin *float64 `json:"media_short_min"`
	MediaLongMin  *float64 `json:"media_long_min"`
	MediaGeralMin *float64 `json:"media_geral_min"`
	AmostrasShort int      `json:"amostras_short"`
	AmostrasLong  int      `json:"amostras_long"`
}

type RouteSnapshot struct {
	MediaMinutos *float64 `json:"media_minutos"`
	Amostras     int      `json:"amostras"`
}

type CapacitySnapshot struct {
	PedidosUltimaHora    int     `json:"pedidos_ultima_hora"`
	PedidosPorHora       float64 `json:"pedidos_por_hora"`
	MotoboysDisponiveis  int     `json:"motoboys_disponiveis"`
	MotoboysOcupados     int     `json:"motoboys_ocupados"`
	MotoboysTotalAtivos  int     `json:"motoboys_total_ativos"`
	CapacidadePorMotoboy float64 `json:"capacidade_por_motoboy"`
	MotoboysNecessarios  int     `json:"motoboys_necessarios"`
	DeficitMotoboys      int     `json:"deficit_motoboys"`
}

// Collect assembles the full snapshot for one tenant.
func (m *Metrics) Collect(ctx context.Context, tenantID string, now time.Time) (*Snapshot, error) {
	short, long := model.PrepShort, model.PrepLong
	mediaShort, nShort, err := m.AvgPrepMin(ctx, tenantID, &short, now)
	if err != nil {
		return nil, err
	}
	mediaLong, nLong, err := m.AvgPrepMin(ctx, tenantID, &long, now)
	if err != nil {
		return nil, err
	}
	mediaGeral, _, err := m.AvgPrepMin(ctx, tenantID, nil, now)
	if err != nil {
		return nil, err
	}

	rota, nRota, err := m.AvgRouteMin(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	lastHour, err := m.OrdersLastHour(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	available, busy, err := m.CourierCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	waiting, err := m.store.CountReadyUnbatched(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	capPerCourier := DefaultCapacityPerCourier
	routeMin := 30.0
	if rota != nil && *rota > 0 {
		capPerCourier = 60 / *rota
		routeMin = *rota
	}
	needed := RequiredCouriers(float64(lastHour), routeMin)
	total := available + busy
	deficit := needed - total
	if deficit < 0 {
		deficit = 0
	}

	return &Snapshot{
		Preparo: PrepSnapshot{
			MediaShortMin: Round1p(mediaShort),
			MediaLongMin:  Round1p(mediaLong),
			MediaGeralMin: Round1p(mediaGeral),
			AmostrasShort: nShort,
			AmostrasLong:  nLong,
		},
		Rota: RouteSnapshot{
			MediaMinutos: Round1p(rota),
			Amostras:     nRota,
		},
		Capacidade: CapacitySnapshot{
			PedidosUltimaHora:    lastHour,
			PedidosPorHora:       float64(lastHour),
			MotoboysDisponiveis:  available,
			MotoboysOcupados:     busy,
			MotoboysTotalAtivos:  total,
			CapacidadePorMotoboy: Round1(capPerCourier),
			MotoboysNecessarios:  needed,
			DeficitMotoboys:      deficit,
		},
		PedidosAguardando: waiting,
		Timestamp:         now,
	}, nil
}
