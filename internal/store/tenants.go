package store

import (
	"context"
	"fmt"
	"time"

	"motofrete/internal/apperr"
	"motofrete/internal/model"
)

const tenantColumns = `id, slug, name, email, phone, address, lat, lng,
	plan, trial_ends_at, blocked, created_at, updated_at`

// CreateTenant inserts a new tenant. Duplicate email or slug is a
// Conflict.
func (s *Store) CreateTenant(ctx context.Context, t *model.Tenant) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.Slug, t.Name, t.Email, t.Phone, t.Address, t.Lat, t.Lng,
		t.Plan, t.TrialEndsAt, t.Blocked, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "Este email já está cadastrado")
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// GetTenant fetches one tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	var t model.Tenant
	err := s.db.GetContext(ctx, &t, s.rebind(`
		SELECT `+tenantColumns+` FROM tenants WHERE id = ?`), id)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Restaurante não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// SlugTaken reports whether a tenant already uses the slug.
func (s *Store) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT COUNT(*) FROM tenants WHERE slug = ?`), slug)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

// EmailTaken checks registration emails across users and tenants, the
// two places a login identity can live.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.rebind(`
		SELECT (SELECT COUNT(*) FROM users WHERE email = ?)
		     + (SELECT COUNT(*) FROM tenants WHERE email = ?)`), email, email)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

// SetTenantBlocked flips the blocked flag, used when a trial runs out.
func (s *Store) SetTenantBlocked(ctx context.Context, id string, blocked bool, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE tenants SET blocked = ?, updated_at = ? WHERE id = ?`),
		blocked, now, id)
	if err != nil {
		return fmt.Errorf("set tenant blocked: %w", err)
	}
	return nil
}

// CreateUser inserts an operator login.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, tenant_id, name, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.TenantID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "Este email já está cadastrado")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a login identity; used by login only, so the
// lookup is global.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.rebind(`
		SELECT id, tenant_id, name, email, password_hash, role, created_at
		FROM users WHERE email = ?`), email)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Usuário não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// GetUser fetches one user by id within a tenant.
func (s *Store) GetUser(ctx context.Context, tenantID, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.rebind(`
		SELECT id, tenant_id, name, email, password_hash, role, created_at
		FROM users WHERE id = ? AND tenant_id = ?`), id, tenantID)
	if noRows(err) {
		return nil, apperr.New(apperr.NotFound, "Usuário não encontrado")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListTenantIDs returns every tenant id, for the scheduled training
// pass.
func (s *Store) ListTenantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT id FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenant ids: %w", err)
	}
	return ids, nil
}
