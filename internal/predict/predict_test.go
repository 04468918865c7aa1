package predict

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"motofrete/internal/model"
	"motofrete/internal/store"
)

func newFixture(t *testing.T) (*Predictor, *store.Store, string) {
	t.Helper()
	s, err := store.Open("sqlite3", ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Now().UTC()
	tenant := &model.Tenant{
		ID: uuid.NewString(), Slug: "lanchonete-" + uuid.NewString()[:8],
		Name: "Lanchonete Teste", Email: uuid.NewString() + "@test.dev",
		Plan: model.PlanTrial, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return New(s, zap.NewNop()), s, tenant.ID
}

func seedDelivered(t *testing.T, s *store.Store, tenantID string, created time.Time, prepMin, routeMin float64) {
	t.Helper()
	ready := created.Add(time.Duration(prepMin * float64(time.Minute)))
	delivered := ready.Add(time.Duration(routeMin * float64(time.Minute)))
	o := &model.Order{
		ID: uuid.NewString(), TenantID: tenantID, CustomerName: "Cliente",
		AddressText: "Rua Y, 2", Lat: -21.17, Lng: -47.81,
		PrepType: model.PrepShort, Status: model.OrderDelivered,
		CreatedAt: created, ReadyAt: &ready, DeliveredAt: &delivered,
		UpdatedAt: delivered,
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
}

func seedReady(t *testing.T, s *store.Store, tenantID string, created time.Time) {
	t.Helper()
	ready := created.Add(5 * time.Minute)
	o := &model.Order{
		ID: uuid.NewString(), TenantID: tenantID, CustomerName: "Cliente",
		AddressText: "Rua Y, 2", Lat: -21.17, Lng: -47.81,
		PrepType: model.PrepShort, Status: model.OrderReady,
		CreatedAt: created, ReadyAt: &ready, UpdatedAt: ready,
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
}

func TestTrainBuildsPatternsPerSlot(t *testing.T) {
	p, s, tenant := newFixture(t)
	now := time.Now().UTC()

	// Same weekday and hour on two different dates: 2 and 4 orders.
	weekAgo := now.Add(-7 * 24 * time.Hour)
	twoWeeksAgo := now.Add(-14 * 24 * time.Hour)
	for i := 0; i < 2; i++ {
		seedDelivered(t, s, tenant, weekAgo, 10, 20)
	}
	for i := 0; i < 4; i++ {
		seedDelivered(t, s, tenant, twoWeeksAgo, 10, 20)
	}

	res, err := p.Train(context.Background(), tenant, now)
	require.NoError(t, err)
	assert.True(t, res.Sucesso)
	assert.Equal(t, 1, res.PadroesAtualizados)
	assert.Equal(t, 6, res.PedidosAnalisados)

	pat, err := s.GetPattern(context.Background(), tenant,
		model.WeekdayFromTime(weekAgo), weekAgo.Hour())
	require.NoError(t, err)
	require.NotNil(t, pat)
	assert.InDelta(t, 3.0, pat.AvgOrdersPerHour, 0.01) // (2+4)/2 dates
	assert.InDelta(t, 10.0, pat.AvgPrepMin, 0.01)
	assert.InDelta(t, 30.0, pat.AvgRouteMin, 0.01) // 20 min one way * 1.5
	assert.Equal(t, 2, pat.Samples)
	// 3 orders/h over 2 deliveries/h capacity, padded 20%: 1.8+0.5 -> 2.
	assert.Equal(t, 2, pat.RecommendedCouriers)
}

func TestTrainIgnoresOldOrders(t *testing.T) {
	p, s, tenant := newFixture(t)
	now := time.Now().UTC()

	seedDelivered(t, s, tenant, now.Add(-6*7*24*time.Hour), 10, 20)

	res, err := p.Train(context.Background(), tenant, now)
	require.NoError(t, err)
	assert.True(t, res.Sucesso)
	assert.Equal(t, 0, res.PadroesAtualizados)
	assert.Equal(t, 0, res.PedidosAnalisados)
}

func TestTrainIdempotent(t *testing.T) {
	p, s, tenant := newFixture(t)
	now := time.Now().UTC()
	seedDelivered(t, s, tenant, now.Add(-7*24*time.Hour), 10, 20)
	seedDelivered(t, s, tenant, now.Add(-7*24*time.Hour), 10, 20)

	first, err := p.Train(context.Background(), tenant, now)
	require.NoError(t, err)
	second, err := p.Train(context.Background(), tenant, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	all, err := s.ListPatterns(context.Background(), tenant)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecommendedCouriers(t *testing.T) {
	tests := []struct {
		name     string
		orders   float64
		routeMin float64
		want     int
	}{
		{"no volume", 0, 30, 1},
		{"light", 2, 30, 1},     // 2/2*1.2+0.5 = 1.7
		{"moderate", 5, 30, 3},  // 5/2*1.2+0.5 = 3.5
		{"slow routes", 4, 60, 5}, // 4/1*1.2+0.5 = 5.3
		{"missing route data", 3, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendedCouriers(tt.orders, tt.routeMin))
		})
	}
}

func TestHybridQueueWithoutCouriers(t *testing.T) {
	p, s, tenant := newFixture(t)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		seedReady(t, s, tenant, now.Add(-20*time.Minute))
	}

	f, err := p.Hybrid(context.Background(), tenant, now)
	require.NoError(t, err)

	assert.False(t, f.Historico.Disponivel)
	assert.Equal(t, "critico", f.Recomendacao.Status)
	require.NotNil(t, f.Recomendacao.Motoboys)
	assert.GreaterOrEqual(t, *f.Recomendacao.Motoboys, 2)
	assert.Equal(t, 3, f.Atual.PedidosFila)
	assert.Equal(t, 0, f.Atual.MotoboysDisponiveis)
	assert.Contains(t, f.Recomendacao.Mensagem, "3 pedido(s) aguardando e nenhum motoboy disponível!")
	require.NotNil(t, f.Recomendacao.AcaoSugerida)
	assert.Contains(t, *f.Recomendacao.AcaoSugerida, "Ative mais motoboys AGORA!")
}

func TestHybridDemandSpikeOverHistory(t *testing.T) {
	p, s, tenant := newFixture(t)
	now := time.Now().UTC()

	require.NoError(t, s.UpsertPattern(context.Background(), &model.DemandPattern{
		TenantID: tenant, Weekday: model.WeekdayFromTime(now), Hour: now.Hour(),
		AvgOrdersPerHour: 2, AvgPrepMin: 15, AvgRouteMin: 30,
		RecommendedCouriers: 3, Samples: 5, UpdatedAt: now,
	}))

	courier := &model.Courier{
		ID: uuid.NewString(), TenantID: tenant, Name: "João",
		Phone: "16-" + uuid.NewString()[:8], Status: model.CourierAvailable,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateCourier(context.Background(), courier))

	// Three orders in the last hour against a historical average of two:
	// +50% demand.
	for i := 0; i < 3; i++ {
		o := &model.Order{
			ID: uuid.NewString(), TenantID: tenant, CustomerName: "Cliente",
			AddressText: "Rua Z, 3", Lat: -21.17, Lng: -47.81,
			PrepType: model.PrepShort, Status: model.OrderPreparing,
			CreatedAt: now.Add(-10 * time.Minute), UpdatedAt: now,
		}
		require.NoError(t, s.CreateOrder(context.Background(), o))
	}

	f, err := p.Hybrid(context.Background(), tenant, now)
	require.NoError(t, err)

	assert.True(t, f.Historico.Disponivel)
	assert.Equal(t, "atencao", f.Recomendacao.Status)
	require.NotNil(t, f.Recomendacao.Motoboys)
	// 3 * (1 + 50/200) = 3.75 -> 3.
	assert.Equal(t, 3, *f.Recomendacao.Motoboys)
	require.NotNil(t, f.Comparacao.VariacaoDemandaPct)
	assert.InDelta(t, 50.0, *f.Comparacao.VariacaoDemandaPct, 0.01)
	assert.Contains(t, f.Recomendacao.Mensagem,
		fmt.Sprintf("Demanda 50%% acima do normal para %s às %dh",
			model.WeekdayName(model.WeekdayFromTime(now)), now.Hour()))
}

func TestHybridNoDataAtAll(t *testing.T) {
	p, _, tenant := newFixture(t)
	now := time.Now().UTC()

	f, err := p.Hybrid(context.Background(), tenant, now)
	require.NoError(t, err)

	assert.Nil(t, f.Recomendacao.Motoboys)
	assert.Equal(t, "adequado", f.Recomendacao.Status)
	assert.Equal(t, "Sem dados suficientes para recomendação. Aguardando mais pedidos.",
		f.Recomendacao.Mensagem)
}

func TestPatternsDump(t *testing.T) {
	p, s, tenant := newFixture(t)
	now := time.Now().UTC()

	require.NoError(t, s.UpsertPattern(context.Background(), &model.DemandPattern{
		TenantID: tenant, Weekday: 4, Hour: 19,
		AvgOrdersPerHour: 6, AvgPrepMin: 18, AvgRouteMin: 33,
		RecommendedCouriers: 4, Samples: 5, UpdatedAt: now,
	}))

	dump, err := p.Patterns(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, dump.TotalPadroes)
	require.Len(t, dump.Padroes, 1)
	assert.Equal(t, "Sexta", dump.Padroes[0].DiaNome)
	assert.Equal(t, 19, dump.Padroes[0].Hora)
}
