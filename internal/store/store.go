// Package store owns all persisted entity state. It runs on Postgres in
// production and SQLite for dev and tests, through sqlx with rebound
// placeholders. Every tenant-owned query filters by tenant_id; nothing
// above this package ever sees another tenant's rows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store is the shared storage handle. Safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger

	// Serializes short-id allocation per tenant within this process.
	// The unique (tenant_id, short_id) index backstops other processes.
	shortIDMu sync.Mutex
}

// Open connects and migrates. driver is "postgres" or "sqlite3"; for
// sqlite the parent directory is created and WAL is enabled.
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	if driver == "sqlite3" && dsn != ":memory:" && !strings.Contains(dsn, "mode=memory") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = "file:" + dsn + "?_busy_timeout=5000&_journal_mode=WAL&_fk=1"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		// One writer at a time keeps SQLITE_BUSY out of the picture.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("store ready", zap.String("driver", driver))
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// rebind converts ?-placeholders to the driver's flavor.
func (s *Store) rebind(query string) string { return s.db.Rebind(query) }

// Tx is one transaction's view of the store, used where several
// mutations must land together (dispatch runs, batch completion).
type Tx struct {
	tx *sqlx.Tx
	s  *Store
}

func (t *Tx) rebind(query string) string { return t.tx.Rebind(query) }

// InTx runs fn inside a transaction, committing on nil and rolling back
// on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Tx{tx: tx, s: s}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}

func noRows(err error) bool { return err == sql.ErrNoRows }
