package store

import (
	"context"
	"fmt"
	"time"

	"motofrete/internal/apperr"
	"motofrete/internal/model"
)

const courierColumns = `id, tenant_id, name, phone, password_hash, status,
	last_lat, last_lng, available_since, created_at, updated_at`

// CreateCourier inserts a new courier. Phone is unique per tenant.
func (s *Store) CreateCourier(ctx context.Context, c *model.Courier) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO couriers (`+courierColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.TenantID, c.Name, c.Phone, c.PasswordHash, c.Status,
		c.LastLat, c.LastLng, c.AvailableSince, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "Telefone já cadastrado para outro motoqueiro")
	}
	if err != nil {
		return fmt.Errorf("insert courier: %w", err)
	}
	return nil
}

// GetCourier fetches one courier within a tenant.
func (s *Store) GetCourier(ctx context.Context, tenantID, id string) (*model.Courier, error) {
	var c model.Courier
	err := s.db.GetContext(ctx, &c, s.rebind(`
		SELECT `+courierColumns+` FROM couriers WHERE id = ? AND tenant_id = ?`),
		id, tenantID)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Motoqueiro não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("get courier: %w", err)
	}
	return &c, nil
}

// CourierByID resolves a courier without a tenant filter. Only the
// public courier endpoints use it: the id is an opaque uuid the courier
// received out of band, and every action is still checked against the
// courier's own active batch.
func (s *Store) CourierByID(ctx context.Context, id string) (*model.Courier, error) {
	var c model.Courier
	err := s.db.GetContext(ctx, &c, s.rebind(`
		SELECT `+courierColumns+` FROM couriers WHERE id = ?`), id)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Motoqueiro não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("courier by id: %w", err)
	}
	return &c, nil
}

// ListCouriers returns the tenant's couriers by name, optionally
// filtered by status.
func (s *Store) ListCouriers(ctx context.Context, tenantID string, status *model.CourierStatus) ([]model.Courier, error) {
	query := `SELECT ` + courierColumns + ` FROM couriers WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY name`

	couriers := []model.Courier{}
	if err := s.db.SelectContext(ctx, &couriers, s.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list couriers: %w", err)
	}
	return couriers, nil
}

// AvailableCouriers returns the dispatch candidates in FIFO order,
// longest waiting first.
func (s *Store) AvailableCouriers(ctx context.Context, tenantID string) ([]model.Courier, error) {
	couriers := []model.Courier{}
	err := s.db.SelectContext(ctx, &couriers, s.rebind(`
		SELECT `+courierColumns+` FROM couriers
		WHERE tenant_id = ? AND status = ?
		ORDER BY available_since`), tenantID, model.CourierAvailable)
	if err != nil {
		return nil, fmt.Errorf("available couriers: %w", err)
	}
	return couriers, nil
}

// UpdateCourier persists the mutable fields of a courier.
func (s *Store) UpdateCourier(ctx context.Context, c *model.Courier) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE couriers SET status = ?, last_lat = ?, last_lng = ?,
			available_since = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`),
		c.Status, c.LastLat, c.LastLng, c.AvailableSince, c.UpdatedAt,
		c.ID, c.TenantID)
	if err != nil {
		return fmt.Errorf("update courier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "Motoqueiro não encontrado")
	}
	return nil
}

// DeleteCourier removes a courier with no active batch.
func (s *Store) DeleteCourier(ctx context.Context, tenantID, id string) error {
	active, err := s.ActiveBatchForCourier(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if active != nil {
		return apperr.New(apperr.Conflict,
			"Motoqueiro tem entregas pendentes. Finalize o lote antes de remover.")
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM couriers WHERE id = ? AND tenant_id = ?`), id, tenantID)
	if err != nil {
		return fmt.Errorf("delete courier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "Motoqueiro não encontrado")
	}
	return nil
}

// CountCouriers returns (available, busy) for a tenant.
func (s *Store) CountCouriers(ctx context.Context, tenantID string) (available, busy int, err error) {
	rows := []struct {
		Status model.CourierStatus `db:"status"`
		N      int                 `db:"n"`
	}{}
	err = s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT status, COUNT(*) AS n FROM couriers
		WHERE tenant_id = ? GROUP BY status`), tenantID)
	if err != nil {
		return 0, 0, fmt.Errorf("count couriers: %w", err)
	}
	for _, r := range rows {
		switch r.Status {
		case model.CourierAvailable:
			available = r.N
		case model.CourierBusy:
			busy = r.N
		}
	}
	return available, busy, nil
}

// CountCouriersByStatus breaks all couriers down per status.
func (s *Store) CountCouriersByStatus(ctx context.Context, tenantID string) (map[model.CourierStatus]int, error) {
	rows := []struct {
		Status model.CourierStatus `db:"status"`
		N      int                 `db:"n"`
	}{}
	err := s.db.SelectContext(ctx, &rows, s.rebind(`
		SELECT status, COUNT(*) AS n FROM couriers
		WHERE tenant_id = ? GROUP BY status`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("count couriers by status: %w", err)
	}
	counts := make(map[model.CourierStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// TouchCourierLocation updates the last-known position.
func (s *Store) TouchCourierLocation(ctx context.Context, tenantID, id string, lat, lng float64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE couriers SET last_lat = ?, last_lng = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`), lat, lng, now, id, tenantID)
	if err != nil {
		return fmt.Errorf("touch courier location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, "Motoqueiro não encontrado")
	}
	return nil
}
