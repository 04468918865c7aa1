package metrics

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

func newFixture(t *testing.T) (*Metrics, *store.Store, string) {
	t.Helper()
	s, err := store.Open("sqlite3", ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	now := time.Now().UTC()
	tenant := &model.Tenant{
		ID: uuid.NewString(), Slug: "pizzaria-" + uuid.NewString()[:8],
		Name: "Pizzaria Teste", Email: uuid.NewString() + "@test.dev",
		Plan: model.PlanTrial, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return New(s), s, tenant.ID
}

func seedDelivered(t *testing.T, s *store.Store, tenantID string, created time.Time, prepMin, routeMin float64) {
	t.Helper()
	ready := created.Add(time.Duration(prepMin * float64(time.Minute)))
	delivered := ready.Add(time.Duration(routeMin * float64(time.Minute)))
	o := &model.Order{
		ID: uuid.NewString(), TenantID: tenantID, CustomerName: "Cliente",
		AddressText: "Rua X, 1", Lat: -21.17, Lng: -47.81,
		PrepType: model.PrepShort, Status: model.OrderDelivered,
		CreatedAt: created, ReadyAt: &ready, DeliveredAt: &delivered,
		UpdatedAt: delivered,
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
}

func TestAvgPrepMinNeedsTwoSamples(t *testing.T) {
	m, s, tenant := newFixture(t)
	now := time.Now().UTC()

	seedDelivered(t, s, tenant, now.Add(-2*time.Hour), 12, 20)

	avg, n, err := m.AvgPrepMin(context.Background(), tenant, nil, now)
	require.NoError(t, err)
	assert.Nil(t, avg, "one sample is not enough")
	assert.Equal(t, 1, n)

	seedDelivered(t, s, tenant, now.Add(-3*time.Hour), 18, 20)

	avg, n, err = m.AvgPrepMin(context.Background(), tenant, nil, now)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 15.0, *avg, 0.01)
}

func TestAvgPrepMinDropsOutliersAndOldOrders(t *testing.T) {
	m, s, tenant := newFixture(t)
	now := time.Now().UTC()

	seedDelivered(t, s, tenant, now.Add(-2*time.Hour), 10, 20)
	seedDelivered(t, s, tenant, now.Add(-2*time.Hour), 20, 20)
	// An order sitting "in preparation" for three hours is a forgotten
	// scan, not a datapoint.
	seedDelivered(t, s, tenant, now.Add(-5*time.Hour), 180, 20)
	// Outside the 24 h window entirely.
	seedDelivered(t, s, tenant, now.Add(-30*time.Hour), 10, 20)

	avg, n, err := m.AvgPrepMin(context.Background(), tenant, nil, now)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 15.0, *avg, 0.01)
}

func TestAvgRouteMinAppliesReturnLeg(t *testing.T) {
	m, s, tenant := newFixture(t)
	now := time.Now().UTC()

	seedDelivered(t, s, tenant, now.Add(-2*time.Hour), 10, 20)
	seedDelivered(t, s, tenant, now.Add(-3*time.Hour), 10, 30)

	avg, n, err := m.AvgRouteMin(context.Background(), tenant, now)
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, 2, n)
	// (20*1.5 + 30*1.5) / 2
	assert.InDelta(t, 37.5, *avg, 0.01)
}

func TestOrdersLastHour(t *testing.T) {
	m, s, tenant := newFixture(t)
	now := time.Now().UTC()

	seedDelivered(t, s, tenant, now.Add(-30*time.Minute), 10, 10)
	seedDelivered(t, s, tenant, now.Add(-90*time.Minute), 10, 10)

	n, err := m.OrdersLastHour(context.Background(), tenant, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRequiredCouriers(t *testing.T) {
	// 6 orders/h at 30 min cycles: capacity 2/h, 6/2+0.9 = 3.9 -> 3.
	assert.Equal(t, 3, RequiredCouriers(6, 30))
	// 5 orders/h: 5/2+0.9 = 3.4 -> 3.
	assert.Equal(t, 3, RequiredCouriers(5, 30))
	// Zero volume still keeps one courier around.
	assert.Equal(t, 1, RequiredCouriers(0, 30))
	// Missing route data falls back to the 30 min default.
	assert.Equal(t, 2, RequiredCouriers(3, 0))
}

func TestCollectWithoutData(t *testing.T) {
	m, _, tenant := newFixture(t)
	now := time.Now().UTC()

	snap, err := m.Collect(context.Background(), tenant, now)
	require.NoError(t, err)
	assert.Nil(t, snap.Rota.MediaMinutos)
	assert.Equal(t, 2.0, snap.Capacidade.CapacidadePorMotoboy)
	assert.Equal(t, 1, snap.Capacidade.MotoboysNecessarios)
	assert.Equal(t, 1, snap.Capacidade.DeficitMotoboys)
	assert.Equal(t, 0, snap.PedidosAguardando)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 12.3, Round1(12.34))
	assert.Equal(t, 12.4, Round1(12.36))
	assert.Nil(t, Round1p(nil))
}
