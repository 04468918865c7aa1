package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"motofrete/internal/model"
	"motofrete/internal/store"
)

func newFixture(t *testing.T) (*Evaluator, *store.Store, string) {
	t.Helper()
	s, err := store.Open("sqlite3", ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Now().UTC()
	tenant := &model.Tenant{
		ID: uuid.NewString(), Slug: "hamburgueria-" + uuid.NewString()[:8],
		Name: "Hamburgueria Teste", Email: uuid.NewString() + "@test.dev",
		Plan: model.PlanTrial, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return New(s), s, tenant.ID
}

func seedOrder(t *testing.T, s *store.Store, tenantID string, status model.OrderStatus) {
	t.Helper()
	now := time.Now().UTC()
	ready := now
	o := &model.Order{
		ID: uuid.NewString(), TenantID: tenantID, CustomerName: "Cliente",
		AddressText: "Av. Brasil, 100", Lat: -21.17, Lng: -47.81,
		PrepType: model.PrepShort, Status: status,
		CreatedAt: now, ReadyAt: &ready, UpdatedAt: now,
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
}

func seedCourier(t *testing.T, s *store.Store, tenantID string, status model.CourierStatus) {
	t.Helper()
	now := time.Now().UTC()
	c := &model.Courier{
		ID: uuid.NewString(), TenantID: tenantID, Name: "Motoqueiro",
		Phone: "16-" + uuid.NewString()[:8], Status: status,
		AvailableSince: &now, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateCourier(context.Background(), c))
}

func TestEvaluateQueueWithNoActiveCouriers(t *testing.T) {
	e, s, tenant := newFixture(t)
	for i := 0; i < 5; i++ {
		seedOrder(t, s, tenant, model.OrderReady)
	}

	res, err := e.Evaluate(context.Background(), tenant, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, Critico, res.StatusGeral)
	assert.Equal(t, 3, res.MotoboysSugeridos) // 5/2+1
	require.Len(t, res.Alertas, 1)
	a := res.Alertas[0]
	assert.Equal(t, Critico, a.Tipo)
	assert.Equal(t, "Nenhum motoboy ativo!", a.Titulo)
	assert.Equal(t, "5 pedido(s) pronto(s) e nenhum motoboy para entregar", a.Mensagem)
	assert.Equal(t, "🚫", a.Icone)
	assert.Equal(t, 5, a.Valor)
}

func TestEvaluateEnoughCouriersForQueue(t *testing.T) {
	e, s, tenant := newFixture(t)
	seedOrder(t, s, tenant, model.OrderReady)
	seedOrder(t, s, tenant, model.OrderReady)
	seedCourier(t, s, tenant, model.CourierAvailable)
	seedCourier(t, s, tenant, model.CourierAvailable)
	seedCourier(t, s, tenant, model.CourierAvailable)

	res, err := e.Evaluate(context.Background(), tenant, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, Info, res.StatusGeral)
	require.Len(t, res.Alertas, 1)
	assert.Equal(t, "Pedidos prontos para sair!", res.Alertas[0].Titulo)
	assert.Equal(t, "🚀", res.Alertas[0].Icone)
	assert.Equal(t, "2 pedido(s) pronto(s), 3 motoboy(s) disponível(is)", res.Alertas[0].Mensagem)
	// max(available, queue/2+1) = max(3, 2)
	assert.Equal(t, 3, res.MotoboysSugeridos)
}

func TestEvaluateNotEnoughFreeCouriers(t *testing.T) {
	e, s, tenant := newFixture(t)
	for i := 0; i < 4; i++ {
		seedOrder(t, s, tenant, model.OrderReady)
	}
	seedCourier(t, s, tenant, model.CourierAvailable)
	seedCourier(t, s, tenant, model.CourierBusy)

	res, err := e.Evaluate(context.Background(), tenant, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, Atencao, res.StatusGeral)
	require.Len(t, res.Alertas, 1)
	a := res.Alertas[0]
	assert.Equal(t, "Mais pedidos que motoboys livres", a.Titulo)
	assert.Equal(t, "⚠️", a.Icone)
	assert.Equal(t, "4 pedido(s) pronto(s), mas só 1 motoboy(s) disponível(is)", a.Mensagem)
	assert.Equal(t, 3, a.Valor) // 4 queued - 1 free
	assert.Equal(t, 3, res.MotoboysSugeridos)
}

func TestEvaluateAllCouriersBusy(t *testing.T) {
	e, s, tenant := newFixture(t)
	seedOrder(t, s, tenant, model.OrderReady)
	seedCourier(t, s, tenant, model.CourierBusy)
	seedCourier(t, s, tenant, model.CourierBusy)

	res, err := e.Evaluate(context.Background(), tenant, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, Atencao, res.StatusGeral)
	require.Len(t, res.Alertas, 1)
	assert.Equal(t, "Motoboys todos ocupados", res.Alertas[0].Titulo)
	assert.Equal(t, "⏳", res.Alertas[0].Icone)
	assert.Equal(t, "1 pedido(s) aguardando, 2 motoboy(s) em entrega", res.Alertas[0].Mensagem)
	// max(available=0, 1/2+1)
	assert.Equal(t, 1, res.MotoboysSugeridos)
}

func TestEvaluateOperationFlowing(t *testing.T) {
	e, s, tenant := newFixture(t)
	seedOrder(t, s, tenant, model.OrderPickedUp)
	seedCourier(t, s, tenant, model.CourierBusy)

	res, err := e.Evaluate(context.Background(), tenant, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, Sucesso, res.StatusGeral)
	require.Len(t, res.Alertas, 1)
	assert.Equal(t, "Operação fluindo bem!", res.Alertas[0].Titulo)
	assert.Equal(t, "1 pedido(s) em rota, nenhum acumulado", res.Alertas[0].Mensagem)
	assert.Equal(t, 1, res.MotoboysSugeridos)
}

func TestEvaluateIdle(t *testing.T) {
	e, _, tenant := newFixture(t)

	res, err := e.Evaluate(context.Background(), tenant, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, Sucesso, res.StatusGeral)
	require.Len(t, res.Alertas, 1)
	assert.Equal(t, "Operação normal", res.Alertas[0].Titulo)
	assert.Equal(t, "Nenhum pedido aguardando", res.Alertas[0].Mensagem)
	assert.Nil(t, res.Alertas[0].AcaoSugerida)
	assert.Equal(t, 1, res.MotoboysSugeridos)
}

func TestEvaluateTenantScoped(t *testing.T) {
	e, s, tenantA := newFixture(t)
	now := time.Now().UTC()
	other := &model.Tenant{
		ID: uuid.NewString(), Slug: "outro-" + uuid.NewString()[:8],
		Name: "Outro", Email: uuid.NewString() + "@test.dev",
		Plan: model.PlanTrial, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateTenant(context.Background(), other))
	seedOrder(t, s, other.ID, model.OrderReady)

	res, err := e.Evaluate(context.Background(), tenantA, now)
	require.NoError(t, err)
	assert.Equal(t, Sucesso, res.StatusGeral)
	assert.Equal(t, "Operação normal", res.Alertas[0].Titulo)
}
