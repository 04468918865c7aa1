package store

import (
	"context"
	"fmt"
	"time"

	"motofrete/internal/apperr"
	"motofrete/internal/model"
)

const batchColumns = `id, tenant_id, courier_id, status, created_at, completed_at`

// GetBatch fetches one batch within a tenant.
func (s *Store) GetBatch(ctx context.Context, tenantID, id string) (*model.Batch, error) {
	var b model.Batch
	err := s.db.GetContext(ctx, &b, s.rebind(`
		SELECT `+batchColumns+` FROM batches WHERE id = ? AND tenant_id = ?`),
		id, tenantID)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Lote não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return &b, nil
}

// ActiveBatchForCourier returns the courier's non-terminal batch, or nil
// when the courier is idle. A courier holds at most one.
func (s *Store) ActiveBatchForCourier(ctx context.Context, tenantID, courierID string) (*model.Batch, error) {
	var b model.Batch
	err := s.db.GetContext(ctx, &b, s.rebind(`
		SELECT `+batchColumns+` FROM batches
		WHERE tenant_id = ? AND courier_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`),
		tenantID, courierID, model.BatchAssigned, model.BatchInProgress)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active batch for courier: %w", err)
	}
	return &b, nil
}

// ListActiveBatches returns the tenant's non-terminal batches, newest
// first.
func (s *Store) ListActiveBatches(ctx context.Context, tenantID string) ([]model.Batch, error) {
	batches := []model.Batch{}
	err := s.db.SelectContext(ctx, &batches, s.rebind(`
		SELECT `+batchColumns+` FROM batches
		WHERE tenant_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC`),
		tenantID, model.BatchAssigned, model.BatchInProgress)
	if err != nil {
		return nil, fmt.Errorf("list active batches: %w", err)
	}
	return batches, nil
}

// CountActiveBatches counts the tenant's non-terminal batches.
func (s *Store) CountActiveBatches(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM batches WHERE tenant_id = ? AND status IN (?, ?)`),
		tenantID, model.BatchAssigned, model.BatchInProgress)
	if err != nil {
		return 0, fmt.Errorf("count active batches: %w", err)
	}
	return n, nil
}

// BatchOrders returns a batch's orders in stop order.
func (s *Store) BatchOrders(ctx context.Context, tenantID, batchID string) ([]model.Order, error) {
	orders := []model.Order{}
	err := s.db.SelectContext(ctx, &orders, s.rebind(`
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = ? AND batch_id = ?
		ORDER BY stop_order`), tenantID, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch orders: %w", err)
	}
	return orders, nil
}

// UpdateBatch persists a batch status change.
func (s *Store) UpdateBatch(ctx context.Context, b *model.Batch) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE batches SET status = ?, completed_at = ?
		WHERE id = ? AND tenant_id = ?`),
		b.Status, b.CompletedAt, b.ID, b.TenantID)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "Lote não encontrado")
	}
	return nil
}

// CompleteBatch terminates the courier's active batch: every contained
// order (already-cancelled ones aside) goes to delivered, the batch to
// done and the courier back to available, all in one transaction.
func (s *Store) CompleteBatch(ctx context.Context, tenantID, courierID string, now time.Time) (*model.Batch, error) {
	batch, err := s.ActiveBatchForCourier(ctx, tenantID, courierID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, apperr.New(apperr.InvalidTransition, "Motoqueiro não tem lote ativo")
	}

	err = s.InTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, tx.rebind(`
			UPDATE orders SET status = ?, delivered_at = ?, updated_at = ?
			WHERE tenant_id = ? AND batch_id = ? AND status != ?`),
			model.OrderDelivered, now, now,
			tenantID, batch.ID, model.OrderCancelled)
		if err != nil {
			return fmt.Errorf("deliver batch orders: %w", err)
		}

		if _, err := tx.tx.ExecContext(ctx, tx.rebind(`
			UPDATE batches SET status = ?, completed_at = ?
			WHERE id = ? AND tenant_id = ?`),
			model.BatchDone, now, batch.ID, tenantID); err != nil {
			return fmt.Errorf("complete batch: %w", err)
		}

		if _, err := tx.tx.ExecContext(ctx, tx.rebind(`
			UPDATE couriers SET status = ?, available_since = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`),
			model.CourierAvailable, now, now, courierID, tenantID); err != nil {
			return fmt.Errorf("release courier: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch.Status = model.BatchDone
	batch.CompletedAt = &now
	return batch, nil
}

// Transactional mutations used by the dispatcher. All claims are
// compare-and-set so a racing run can never double-assign.

// CreateBatch inserts a batch inside the dispatch transaction.
func (t *Tx) CreateBatch(ctx context.Context, b *model.Batch) error {
	_, err := t.tx.ExecContext(ctx, t.rebind(`
		INSERT INTO batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`),
		b.ID, b.TenantID, b.CourierID, b.Status, b.CreatedAt, b.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// ClaimOrder assigns a ready, unbatched order to a batch. Returns false
// when the order was already claimed elsewhere.
func (t *Tx) ClaimOrder(ctx context.Context, tenantID, orderID, batchID string, stopOrder int, now time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.rebind(`
		UPDATE orders SET status = ?, batch_id = ?, stop_order = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status = ? AND batch_id IS NULL`),
		model.OrderAssigned, batchID, stopOrder, now,
		orderID, tenantID, model.OrderReady)
	if err != nil {
		return false, fmt.Errorf("claim order: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkCourierBusy claims an available courier. Returns false when the
// courier is no longer available.
func (t *Tx) MarkCourierBusy(ctx context.Context, tenantID, courierID string, now time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.rebind(`
		UPDATE couriers SET status = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND status = ?`),
		model.CourierBusy, now, courierID, tenantID, model.CourierAvailable)
	if err != nil {
		return false, fmt.Errorf("mark courier busy: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
