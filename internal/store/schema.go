package store

import "fmt"

// Schema statements are written in the SQL subset both drivers accept.
// Entity ids are uuid strings; timestamps are driver-native.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id            TEXT PRIMARY KEY,
		slug          TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		phone         TEXT NOT NULL DEFAULT '',
		address       TEXT NOT NULL DEFAULT '',
		lat           DOUBLE PRECISION,
		lng           DOUBLE PRECISION,
		plan          TEXT NOT NULL DEFAULT 'trial',
		trial_ends_at TIMESTAMP,
		blocked       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL REFERENCES tenants(id),
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'owner',
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS couriers (
		id              TEXT PRIMARY KEY,
		tenant_id       TEXT NOT NULL REFERENCES tenants(id),
		name            TEXT NOT NULL,
		phone           TEXT NOT NULL,
		password_hash   TEXT,
		status          TEXT NOT NULL DEFAULT 'offline',
		last_lat        DOUBLE PRECISION,
		last_lng        DOUBLE PRECISION,
		available_since TIMESTAMP,
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_couriers_tenant_phone
		ON couriers (tenant_id, phone)`,
	`CREATE TABLE IF NOT EXISTS batches (
		id           TEXT PRIMARY KEY,
		tenant_id    TEXT NOT NULL REFERENCES tenants(id),
		courier_id   TEXT NOT NULL REFERENCES couriers(id),
		status       TEXT NOT NULL DEFAULT 'assigned',
		created_at   TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_courier_status
		ON batches (courier_id, status)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id             TEXT PRIMARY KEY,
		tenant_id      TEXT NOT NULL REFERENCES tenants(id),
		short_id       INTEGER NOT NULL,
		tracking_code  TEXT NOT NULL UNIQUE,
		customer_name  TEXT NOT NULL DEFAULT 'Cliente',
		customer_phone TEXT,
		address_text   TEXT NOT NULL,
		lat            DOUBLE PRECISION NOT NULL,
		lng            DOUBLE PRECISION NOT NULL,
		prep_type      TEXT NOT NULL DEFAULT 'short',
		status         TEXT NOT NULL DEFAULT 'preparing',
		batch_id       TEXT REFERENCES batches(id),
		stop_order     INTEGER,
		created_at     TIMESTAMP NOT NULL,
		ready_at       TIMESTAMP,
		delivered_at   TIMESTAMP,
		cancelled_at   TIMESTAMP,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_tenant_short_id
		ON orders (tenant_id, short_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_tenant_status
		ON orders (tenant_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_batch
		ON orders (batch_id)`,
	`CREATE TABLE IF NOT EXISTS demand_patterns (
		id                   TEXT PRIMARY KEY,
		tenant_id            TEXT NOT NULL REFERENCES tenants(id),
		weekday              INTEGER NOT NULL,
		hour                 INTEGER NOT NULL,
		avg_orders_per_hour  DOUBLE PRECISION NOT NULL,
		avg_prep_min         DOUBLE PRECISION NOT NULL,
		avg_route_min        DOUBLE PRECISION NOT NULL,
		recommended_couriers INTEGER NOT NULL,
		samples              INTEGER NOT NULL,
		updated_at           TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_patterns_slot
		ON demand_patterns (tenant_id, weekday, hour)`,
}

func (s *Store) migrate() error {
	for i, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
