package predict

import (
	"context"
	"fmt"
	"math"
	"time"

	"motofrete/internal/metrics"
	"motofrete/internal/model"
)

// Forecast is the hybrid prediction payload: learned history, the live
// situation, flow balance and the resulting staffing recommendation.
type Forecast struct {
	Historico     HistorySection   `json:"historico"`
	Atual         LiveSection      `json:"atual"`
	Balanceamento BalanceSection   `json:"balanceamento"`
	Comparacao    CompareSection   `json:"comparacao"`
	Recomendacao  RecommendSection `json:"recomendacao"`
	DiaSemana     int              `json:"dia_semana"`
	HoraAtual     int              `json:"hora_atual"`
	Timestamp     time.Time        `json:"timestamp"`
}

type HistorySection struct {
	Disponivel           bool     `json:"disponivel"`
	MediaPedidosHora     *float64 `json:"media_pedidos_hora"`
	MediaTempoPreparo    *float64 `json:"media_tempo_preparo"`
	MediaTempoRota       *float64 `json:"media_tempo_rota"`
	MotoboysRecomendados *int     `json:"motoboys_recomendados"`
	Amostras             int      `json:"amostras"`
}

type LiveSection struct {
	PedidosUltimaHora   int      `json:"pedidos_ultima_hora"`
	PedidosFila         int      `json:"pedidos_fila"`
	PedidosEmRota       int      `json:"pedidos_em_rota"`
	MotoboysAtivos      int      `json:"motoboys_ativos"`
	MotoboysDisponiveis int      `json:"motoboys_disponiveis"`
	TempoPreparoMin     *float64 `json:"tempo_preparo_min"`
	TempoRotaMin        *float64 `json:"tempo_rota_min"`
}

type BalanceSection struct {
	TaxaSaidaPedidos  float64 `json:"taxa_saida_pedidos"`
	CapacidadeEntrega float64 `json:"capacidade_entrega"`
	Balanco           float64 `json:"balanco"`
	TempoAcumuloMin   *int    `json:"tempo_acumulo_min"`
}

type CompareSection struct {
	VariacaoDemandaPct *float64 `json:"variacao_demanda_pct"`
}

type RecommendSection struct {
	Motoboys     *int    `json:"motoboys"`
	Status       string  `json:"status"`
	Mensagem     string  `json:"mensagem"`
	AcaoSugerida *string `json:"acao_sugerida"`
}

// liveTimes measures prep and route averages over the trailing two
// hours; either comes back nil below two samples.
func (p *Predictor) liveTimes(ctx context.Context, tenantID string, now time.Time) (prep, route *float64, err error) {
	cutoff := now.Add(-liveWindow)

	prepOrders, err := p.store.OrdersWithReadySince(ctx, tenantID, cutoff, nil)
	if err != nil {
		return nil, nil, err
	}
	var prepTimes []float64
	for _, o := range prepOrders {
		if o.ReadyAt == nil {
			continue
		}
		min := o.ReadyAt.Sub(o.CreatedAt).Minutes()
		if min > 0 && min < maxPrepMin {
			prepTimes = append(prepTimes, min)
		}
	}
	if len(prepTimes) >= 2 {
		v := mean(prepTimes)
		prep = &v
	}

	routeOrders, err := p.store.DeliveredWithReadySince(ctx, tenantID, cutoff)
	if err != nil {
		return nil, nil, err
	}
	var routeTimes []float64
	for _, o := range routeOrders {
		if o.ReadyAt == nil || o.DeliveredAt == nil {
			continue
		}
		min := o.DeliveredAt.Sub(*o.ReadyAt).Minutes()
		if min > 0 && min < maxRouteMin {
			routeTimes = append(routeTimes, min*routeReturnFactor)
		}
	}
	if len(routeTimes) >= 2 {
		v := mean(routeTimes)
		route = &v
	}
	return prep, route, nil
}

// Hybrid builds the forecast for the tenant's current weekday and hour.
func (p *Predictor) Hybrid(ctx context.Context, tenantID string, now time.Time) (*Forecast, error) {
	weekday := model.WeekdayFromTime(now)
	hour := now.Hour()

	pattern, err := p.store.GetPattern(ctx, tenantID, weekday, hour)
	if err != nil {
		return nil, err
	}
	historyReliable := pattern != nil && pattern.Samples >= MinSamplesReliable

	available, busy, err := p.store.CountCouriers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totalActive := available + busy

	queue, err := p.store.CountReadyUnbatched(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	inRoute, err := p.store.CountInRoute(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	lastHour, err := p.store.CountOrdersCreatedSince(ctx, tenantID, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}

	livePrep, liveRoute, err := p.liveTimes(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	// History vs live demand.
	var variation *float64
	if historyReliable && pattern.AvgOrdersPerHour > 0 {
		v := (float64(lastHour) - pattern.AvgOrdersPerHour) / pattern.AvgOrdersPerHour * 100
		variation = &v
	}

	// Flow balance: live cycle time first, then history, then default.
	outRate := float64(lastHour)
	cycle := DefaultCycleMin
	if liveRoute != nil {
		cycle = *liveRoute
	} else if historyReliable {
		cycle = pattern.AvgRouteMin
	}
	capacity := float64(available) * (60 / cycle)
	balance := capacity - outRate
	var accumulateMin *int
	if balance < 0 && math.Abs(balance) > 0.1 {
		n := int(60 / math.Abs(balance))
		accumulateMin = &n
	}

	// Recommendation.
	var recommended *int
	status := "adequado"
	message := ""
	var action *string

	hasQueue := queue > 0
	hasRecent := lastHour > 0

	switch {
	case historyReliable:
		base := pattern.RecommendedCouriers
		if variation != nil {
			switch {
			case *variation > 30:
				rec := int(float64(base) * (1 + *variation/200))
				recommended = &rec
				status = "atencao"
				message = fmt.Sprintf("Demanda %.0f%% acima do normal para %s às %dh",
					*variation, model.WeekdayName(weekday), hour)
				a := fmt.Sprintf("Considere ativar %d motoboy(s) adicional(is)", rec-totalActive)
				action = &a
			case *variation < -30:
				rec := int(float64(base) * (1 + *variation/200))
				if rec < 1 {
					rec = 1
				}
				recommended = &rec
				message = fmt.Sprintf("Demanda %.0f%% abaixo do normal. Operação tranquila!",
					math.Abs(*variation))
			default:
				recommended = &base
				message = fmt.Sprintf("Demanda dentro do esperado para %s às %dh",
					model.WeekdayName(weekday), hour)
			}
		} else {
			recommended = &base
			message = fmt.Sprintf("Baseado no histórico: %d motoboy(s) recomendado(s)", base)
		}
	case hasQueue || hasRecent:
		volume := float64(queue)
		if hasRecent {
			volume = float64(lastHour)
		}
		rec := RecommendedCouriers(volume, cycle)
		recommended = &rec
		message = "Ainda coletando dados históricos. Recomendação baseada no ritmo atual."
	default:
		message = "Sem dados suficientes para recomendação. Aguardando mais pedidos."
	}

	// Queue with nobody free overrides everything.
	if queue > 0 && available == 0 {
		if queue >= 3 {
			status = "critico"
		} else {
			status = "atencao"
		}
		message = fmt.Sprintf("%d pedido(s) aguardando e nenhum motoboy disponível!", queue)
		floor := queue/2 + 1
		rec := 1
		if recommended != nil {
			rec = *recommended
		}
		if floor > rec {
			rec = floor
		}
		recommended = &rec
		a := fmt.Sprintf("Ative mais motoboys AGORA! Recomendado: %d", rec)
		action = &a
	}

	if balance < -1 {
		if status != "critico" {
			status = "atencao"
		}
		if accumulateMin != nil && *accumulateMin > 0 {
			message += fmt.Sprintf(" Fila pode crescer em ~%dmin.", *accumulateMin)
		}
	}

	// A queue always floors the recommendation.
	if hasQueue && recommended != nil {
		if floor := queue/2 + 1; floor > *recommended {
			recommended = &floor
		}
	}

	f := &Forecast{
		Atual: LiveSection{
			PedidosUltimaHora:   lastHour,
			PedidosFila:         queue,
			PedidosEmRota:       inRoute,
			MotoboysAtivos:      totalActive,
			MotoboysDisponiveis: available,
			TempoPreparoMin:     metrics.Round1p(livePrep),
			TempoRotaMin:        metrics.Round1p(liveRoute),
		},
		Balanceamento: BalanceSection{
			TaxaSaidaPedidos:  outRate,
			CapacidadeEntrega: metrics.Round1(capacity),
			Balanco:           metrics.Round1(balance),
			TempoAcumuloMin:   accumulateMin,
		},
		Recomendacao: RecommendSection{
			Motoboys:     recommended,
			Status:       status,
			Mensagem:     message,
			AcaoSugerida: action,
		},
		DiaSemana: weekday,
		HoraAtual: hour,
		Timestamp: now,
	}
	if pattern != nil {
		f.Historico = HistorySection{
			Disponivel:           historyReliable,
			MediaPedidosHora:     &pattern.AvgOrdersPerHour,
			MediaTempoPreparo:    &pattern.AvgPrepMin,
			MediaTempoRota:       &pattern.AvgRouteMin,
			MotoboysRecomendados: &pattern.RecommendedCouriers,
			Amostras:             pattern.Samples,
		}
	}
	if variation != nil && *variation != 0 {
		f.Comparacao.VariacaoDemandaPct = metrics.Round1p(variation)
	}
	return f, nil
}
