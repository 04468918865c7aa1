package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motofrete/internal/apperr"
	"motofrete/internal/model"
)

func TestCreateCourierDuplicatePhone(t *testing.T) {
	s := newTestStore(t)
	tenantA := seedTenant(t, s)
	tenantB := seedTenant(t, s)
	now := time.Now().UTC()

	mk := func(tenantID, phone string) error {
		return s.CreateCourier(context.Background(), &model.Courier{
			ID: uuid.NewString(), TenantID: tenantID, Name: "Zé", Phone: phone,
			Status: model.CourierOffline, CreatedAt: now, UpdatedAt: now,
		})
	}

	require.NoError(t, mk(tenantA.ID, "16-99999-0001"))

	err := mk(tenantA.ID, "16-99999-0001")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	// Same phone under another tenant is fine.
	assert.NoError(t, mk(tenantB.ID, "16-99999-0001"))
}

func TestAvailableCouriersFIFO(t *testing.T) {
	s := newTestStore(t)
	tenant := seedTenant(t, s)
	now := time.Now().UTC()

	mk := func(name string, since time.Time) *model.Courier {
		c := &model.Courier{
			ID: uuid.NewString(), TenantID: tenant.ID, Name: name,
			Phone: "16-" + uuid.NewString()[:8], Status: model.CourierAvailable,
			AvailableSince: &since, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.CreateCourier(context.Background(), c))
		return c
	}

	late := mk("Chegou depois", now)
	early := mk("Espera mais", now.Add(-time.Hour))

	got, err := s.AvailableCouriers(context.Background(), tenant.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)
}

func TestDeleteCourierWithActiveBatch(t *testing.T) {
	s := newTestStore(t)
	tenant := seedTenant(t, s)
	courier := seedCourier(t, s, tenant.ID, model.CourierBusy)
	now := time.Now().UTC()

	err := s.InTx(context.Background(), func(tx *Tx) error {
		return tx.CreateBatch(context.Background(), &model.Batch{
			ID: uuid.NewString(), TenantID: tenant.ID, CourierID: courier.ID,
			Status: model.BatchAssigned, CreatedAt: now,
		})
	})
	require.NoError(t, err)

	err = s.DeleteCourier(context.Background(), tenant.ID, courier.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	// Idle couriers can be removed.
	idle := seedCourier(t, s, tenant.ID, model.CourierOffline)
	assert.NoError(t, s.DeleteCourier(context.Background(), tenant.ID, idle.ID))
}

func TestCountCouriers(t *testing.T) {
	s := newTestStore(t)
	tenant := seedTenant(t, s)
	seedCourier(t, s, tenant.ID, model.CourierAvailable)
	seedCourier(t, s, tenant.ID, model.CourierAvailable)
	seedCourier(t, s, tenant.ID, model.CourierBusy)
	seedCourier(t, s, tenant.ID, model.CourierOffline)

	available, busy, err := s.CountCouriers(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
	assert.Equal(t, 1, busy)
}
