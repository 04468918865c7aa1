// Package alerts turns the live queue and courier situation into the
// operator's alert panel. The rules are a small decision tree; all
// user-facing strings are the Portuguese wire contract.
package alerts

import (
	"context"
	"fmt"
	"time"

	"motofrete/internal/store"
)

// Severity is both the per-alert type and the panel's overall status.
type Severity string

const (
	Critico Severity = "critico"
	Atencao Severity = "atencao"
	Info    Severity = "info"
	Sucesso Severity = "sucesso"
)

// Alert is one panel entry.
type Alert struct {
	Tipo         Severity `json:"tipo"`
	Titulo       string   `json:"titulo"`
	Mensagem     string   `json:"mensagem"`
	Icone        string   `json:"icone"`
	AcaoSugerida *string  `json:"acao_sugerida"`
	Valor        int      `json:"valor"`
}

// Result is the full panel payload.
type Result struct {
	StatusGeral       Severity  `json:"status_geral"`
	MotoboysSugeridos int       `json:"motoboys_sugeridos"`
	Alertas           []Alert   `json:"alertas"`
	Timestamp         time.Time `json:"timestamp"`
}

// Evaluator reads the live state for alert generation.
type Evaluator struct {
	store *store.Store
}

// New builds the evaluator.
func New(s *store.Store) *Evaluator { return &Evaluator{store: s} }

// Evaluate walks the scenario tree for one tenant.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID string, now time.Time) (*Result, error) {
	queue, err := e.store.CountReadyUnbatched(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	available, busy, err := e.store.CountCouriers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	totalActive := available + busy

	// Orders waiting with no courier at all: nothing else matters.
	if totalActive == 0 && queue > 0 {
		action := "Ative motoboys AGORA para iniciar as entregas"
		return &Result{
			StatusGeral:       Critico,
			MotoboysSugeridos: max(1, queue/2+1),
			Alertas: []Alert{{
				Tipo:         Critico,
				Titulo:       "Nenhum motoboy ativo!",
				Mensagem:     fmt.Sprintf("%d pedido(s) pronto(s) e nenhum motoboy para entregar", queue),
				Icone:        "🚫",
				AcaoSugerida: &action,
				Valor:        queue,
			}},
			Timestamp: now,
		}, nil
	}

	var alerts []Alert
	status := Sucesso

	switch {
	case queue > 0 && available >= queue:
		action := "Execute o dispatch para enviar os pedidos"
		alerts = append(alerts, Alert{
			Tipo:   Info,
			Titulo: "Pedidos prontos para sair!",
			Mensagem: fmt.Sprintf("%d pedido(s) pronto(s), %d motoboy(s) disponível(is)",
				queue, available),
			Icone:        "🚀",
			AcaoSugerida: &action,
			Valor:        queue,
		})
		status = Info

	case queue > 0 && available > 0:
		missing := queue - available
		action := fmt.Sprintf(
			"Execute o dispatch. Quando os ocupados voltarem, envie o resto. Ou ative mais %d.",
			missing)
		alerts = append(alerts, Alert{
			Tipo:   Atencao,
			Titulo: "Mais pedidos que motoboys livres",
			Mensagem: fmt.Sprintf("%d pedido(s) pronto(s), mas só %d motoboy(s) disponível(is)",
				queue, available),
			Icone:        "⚠️",
			AcaoSugerida: &action,
			Valor:        missing,
		})
		status = Atencao

	case queue > 0:
		action := "Aguarde os motoboys retornarem ou ative mais motoboys"
		alerts = append(alerts, Alert{
			Tipo:   Atencao,
			Titulo: "Motoboys todos ocupados",
			Mensagem: fmt.Sprintf("%d pedido(s) aguardando, %d motoboy(s) em entrega",
				queue, busy),
			Icone:        "⏳",
			AcaoSugerida: &action,
			Valor:        queue,
		})
		status = Atencao

	default:
		inRoute, err := e.store.CountInRoute(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if inRoute > 0 {
			alerts = append(alerts, Alert{
				Tipo:     Sucesso,
				Titulo:   "Operação fluindo bem!",
				Mensagem: fmt.Sprintf("%d pedido(s) em rota, nenhum acumulado", inRoute),
				Icone:    "✅",
			})
		} else {
			alerts = append(alerts, Alert{
				Tipo:     Sucesso,
				Titulo:   "Operação normal",
				Mensagem: "Nenhum pedido aguardando",
				Icone:    "✅",
			})
		}
	}

	suggested := max(1, totalActive)
	if queue > 0 {
		suggested = max(available, queue/2+1)
	}

	return &Result{
		StatusGeral:       status,
		MotoboysSugeridos: suggested,
		Alertas:           alerts,
		Timestamp:         now,
	}, nil
}
