package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"motofrete/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite3", ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTenant(t *testing.T, s *Store) *model.Tenant {
	t.Helper()
	now := time.Now().UTC()
	trialEnd := now.AddDate(0, 0, model.TrialDays)
	lat, lng := -21.2020, -47.8130
	tenant := &model.Tenant{
		ID:          uuid.NewString(),
		Slug:        "pizzaria-" + uuid.NewString()[:8],
		Name:        "Pizzaria Teste",
		Email:       uuid.NewString()[:8] + "@teste.com",
		Lat:         &lat,
		Lng:         &lng,
		Plan:        model.PlanTrial,
		TrialEndsAt: &trialEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.CreateTenant(context.Background(), tenant))
	return tenant
}

func seedOrder(t *testing.T, s *Store, tenantID string, status model.OrderStatus, lat, lng float64) *model.Order {
	t.Helper()
	now := time.Now().UTC()
	o := &model.Order{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CustomerName: "Cliente",
		AddressText:  "Rua Teste, 100",
		Lat:          lat,
		Lng:          lng,
		PrepType:     model.PrepShort,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if status == model.OrderReady || status == model.OrderAssigned ||
		status == model.OrderPickedUp || status == model.OrderDelivered {
		ready := now
		o.ReadyAt = &ready
	}
	if status == model.OrderDelivered {
		delivered := now.Add(20 * time.Minute)
		o.DeliveredAt = &delivered
	}
	require.NoError(t, s.CreateOrder(context.Background(), o))
	return o
}

func seedCourier(t *testing.T, s *Store, tenantID string, status model.CourierStatus) *model.Courier {
	t.Helper()
	now := time.Now().UTC()
	c := &model.Courier{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      "Motoqueiro " + uuid.NewString()[:4],
		Phone:     "16-9" + uuid.NewString()[:8],
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == model.CourierAvailable {
		since := now
		c.AvailableSince = &since
	}
	require.NoError(t, s.CreateCourier(context.Background(), c))
	return c
}
