package store

import (
	"context"
	"fmt"
	"time"

	"motofrete/internal/apperr"
	"motofrete/internal/ident"
	"motofrete/internal/model"
)

const orderColumns = `id, tenant_id, short_id, tracking_code, customer_name,
	customer_phone, address_text, lat, lng, prep_type, status, batch_id,
	stop_order, created_at, ready_at, delivered_at, cancelled_at, updated_at`

// CreateOrder inserts a new order, allocating its short id and tracking
// code inside the transaction. The per-tenant mutex plus the unique
// (tenant_id, short_id) index keep the sequence strictly increasing even
// when several processes share the database.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	s.shortIDMu.Lock()
	defer s.shortIDMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		code, err := ident.NewTrackingCode(func(c string) (bool, error) {
			return s.TrackingCodeExists(ctx, c)
		})
		if err != nil {
			return apperr.Wrap(apperr.Internal, "erro ao gerar código de rastreio", err)
		}
		o.TrackingCode = code

		err = s.InTx(ctx, func(tx *Tx) error {
			var max int
			if err := tx.tx.GetContext(ctx, &max, tx.rebind(`
				SELECT COALESCE(MAX(short_id), 0) FROM orders WHERE tenant_id = ?`),
				o.TenantID); err != nil {
				return fmt.Errorf("max short id: %w", err)
			}
			o.ShortID = ident.NextShortID(max)

			_, err := tx.tx.ExecContext(ctx, tx.rebind(`
				INSERT INTO orders (`+orderColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				o.ID, o.TenantID, o.ShortID, o.TrackingCode, o.CustomerName,
				o.CustomerPhone, o.AddressText, o.Lat, o.Lng, o.PrepType,
				o.Status, o.BatchID, o.StopOrder, o.CreatedAt, o.ReadyAt,
				o.DeliveredAt, o.CancelledAt, o.UpdatedAt)
			return err
		})
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			// Another process took this short id or tracking code.
			lastErr = err
			continue
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return apperr.Wrap(apperr.Internal, "erro ao criar pedido", lastErr)
}

// TrackingCodeExists reports whether any order across all tenants
// carries the code.
func (s *Store) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM orders WHERE tracking_code = ?`), code)
	if err != nil {
		return false, fmt.Errorf("check tracking code: %w", err)
	}
	return n > 0, nil
}

// GetOrder fetches one order within a tenant. A foreign order is
// reported as NotFound, never as Forbidden, so callers cannot probe.
func (s *Store) GetOrder(ctx context.Context, tenantID, id string) (*model.Order, error) {
	var o model.Order
	err := s.db.GetContext(ctx, &o, s.rebind(`
		SELECT `+orderColumns+` FROM orders WHERE id = ? AND tenant_id = ?`),
		id, tenantID)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Pedido não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// GetOrderByTracking resolves a public tracking code; no tenant filter
// because the code is globally unique and opaque.
func (s *Store) GetOrderByTracking(ctx context.Context, code string) (*model.Order, error) {
	var o model.Order
	err := s.db.GetContext(ctx, &o, s.rebind(`
		SELECT `+orderColumns+` FROM orders WHERE tracking_code = ?`), code)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Pedido não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("get order by tracking: %w", err)
	}
	return &o, nil
}

// ListOrders returns the tenant's newest orders, optionally filtered by
// status.
func (s *Store) ListOrders(ctx context.Context, tenantID string, status *model.OrderStatus, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	orders := []model.Order{}
	if err := s.db.SelectContext(ctx, &orders, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateOrder persists the mutable fields of an order.
func (s *Store) UpdateOrder(ctx context.Context, o *model.Order) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE orders SET status = ?, batch_id = ?, stop_order = ?,
			ready_at = ?, delivered_at = ?, cancelled_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`),
		o.Status, o.BatchID, o.StopOrder, o.ReadyAt, o.DeliveredAt,
		o.CancelledAt, o.UpdatedAt, o.ID, o.TenantID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "Pedido não encontrado")
	}
	return nil
}

// ReadyUnbatched returns the dispatch queue: ready orders with no batch,
// oldest ready first.
func (s *Store) ReadyUnbatched(ctx context.Context, tenantID string) ([]model.Order, error) {
	orders := []model.Order{}
	err := s.db.SelectContext(ctx, &orders, s.rebind(`
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = ? AND status = ? AND batch_id IS NULL
		ORDER BY ready_at`), tenantID, model.OrderReady)
	if err != nil {
		return nil, fmt.Errorf("ready unbatched: %w", err)
	}
	return orders, nil
}

// CountReadyUnbatched is the queue depth used by alerts and forecasts.
func (s *Store) CountReadyUnbatched(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM orders
		WHERE tenant_id = ? AND status = ? AND batch_id IS NULL`),
		tenantID, model.OrderReady)
	if err != nil {
		return 0, fmt.Errorf("count ready: %w", err)
	}
	return n, nil
}

// CountInRoute counts orders out with a courier.
func (s *Store) CountInRoute(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM orders
		WHERE tenant_id = ? AND status IN (?, ?)`),
		tenantID, model.OrderAssigned, model.OrderPickedUp)
	if err != nil {
		return 0, fmt.Errorf("count in route: %w", err)
	}
	return n, nil
}

// CountOrdersCreatedSince counts the tenant's order volume in a window.
func (s *Store) CountOrdersCreatedSince(ctx context.Context, tenantID string, cutoff time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM orders WHERE tenant_id = ? AND created_at >= ?`),
		tenantID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count created since: %w", err)
	}
	return n, nil
}

// OrdersWithReadySince returns orders that reached ready, for prep-time
// averages. prepType narrows by preparation type when non-nil.
func (s *Store) OrdersWithReadySince(ctx context.Context, tenantID string, cutoff time.Time, prepType *model.PrepType) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE tenant_id = ? AND ready_at IS NOT NULL AND created_at >= ?`
	args := []interface{}{tenantID, cutoff}
	if prepType != nil {
		query += ` AND prep_type = ?`
		args = append(args, *prepType)
	}
	orders := []model.Order{}
	if err := s.db.SelectContext(ctx, &orders, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("orders with ready since: %w", err)
	}
	return orders, nil
}

// DeliveredWithReadySince returns delivered orders whose ready_at falls
// in the window, for route-time averages.
func (s *Store) DeliveredWithReadySince(ctx context.Context, tenantID string, cutoff time.Time) ([]model.Order, error) {
	orders := []model.Order{}
	err := s.db.SelectContext(ctx, &orders, s.rebind(`
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = ? AND status = ?
		  AND delivered_at IS NOT NULL AND ready_at IS NOT NULL AND ready_at >= ?`),
		tenantID, model.OrderDelivered, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delivered with ready since: %w", err)
	}
	return orders, nil
}

// DeliveredCreatedSince returns delivered orders created in the window,
// the predictor's training set.
func (s *Store) DeliveredCreatedSince(ctx context.Context, tenantID string, cutoff time.Time) ([]model.Order, error) {
	orders := []model.Order{}
	err := s.db.SelectContext(ctx, &orders, s.rebind(`
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = ? AND status = ?
		  AND delivered_at IS NOT NULL AND ready_at IS NOT NULL AND created_at >= ?`),
		tenantID, model.OrderDelivered, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delivered created since: %w", err)
	}
	return orders, nil
}

// ActiveOrders returns the tenant's non-terminal orders, newest first,
// the search space for the operator's quick lookup.
func (s *Store) ActiveOrders(ctx context.Context, tenantID string) ([]model.Order, error) {
	orders := []model.Order{}
	err := s.db.SelectContext(ctx, &orders, s.rebind(`
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = ? AND status NOT IN (?, ?)
		ORDER BY created_at DESC`),
		tenantID, model.OrderDelivered, model.OrderCancelled)
	if err != nil {
		return nil, fmt.Errorf("active orders: %w", err)
	}
	return orders, nil
}

// CountOrdersByStatus breaks the tenant's orders down per status.
func (s *Store) CountOrdersByStatus(ctx context.Context, tenantID string) (map[model.OrderStatus]int, error) {
	rows := []struct {
		Status model.OrderStatus `db:"status"`
		N      int               `db:"n"`
	}{}
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT status, COUNT(*) AS n FROM orders
		WHERE tenant_id = ? GROUP BY status`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	counts := make(map[model.OrderStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
