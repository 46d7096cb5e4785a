// Package postgres implements the warehouse comment backend for PostgreSQL
// using COMMENT ON TABLE/COLUMN.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/logging"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/warehouse"
)

// Warehouse applies comment metadata over a pgx pool.
type Warehouse struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to the configured PostgreSQL warehouse.
func New(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (*Warehouse, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %s", logging.SanitizeError(err))
	}

	logger.Info("Connected to warehouse",
		zap.String("type", "postgres"),
		zap.String("target", logging.SanitizeConnectionString(connStr)))
	return &Warehouse{
		pool:   pool,
		logger: logger.Named("warehouse_postgres"),
	}, nil
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

// Type returns the backend identifier.
func (w *Warehouse) Type() string {
	return "postgres"
}

// CheckConnection verifies the warehouse is reachable.
func (w *Warehouse) CheckConnection(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

// ReadComment returns the live comment for a table or column.
// PostgreSQL folds unquoted identifiers to lowercase, so lookups compare
// case-insensitively against the catalog.
func (w *Warehouse) ReadComment(ctx context.Context, entity models.EntityRef) (string, bool, error) {
	var comment *string
	var err error

	if entity.IsColumn() {
		err = w.pool.QueryRow(ctx, `
			SELECT col_description(c.oid, a.attnum)
			FROM pg_attribute a
			JOIN pg_class c ON c.oid = a.attrelid
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE lower(n.nspname) = lower($1)
			  AND lower(c.relname) = lower($2)
			  AND lower(a.attname) = lower($3)
			  AND a.attnum > 0 AND NOT a.attisdropped`,
			entity.Schema, entity.Table, entity.Column).Scan(&comment)
	} else {
		err = w.pool.QueryRow(ctx, `
			SELECT obj_description(c.oid, 'pg_class')
			FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE lower(n.nspname) = lower($1)
			  AND lower(c.relname) = lower($2)`,
			entity.Schema, entity.Table).Scan(&comment)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("entity %s: %w", entity, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read comment for %s: %w", entity, err)
	}
	if comment == nil {
		return "", false, nil
	}
	return *comment, true, nil
}

// ApplyComment writes the mutation's new value with optimistic concurrency:
// the live value is re-read and must still match the mutation's snapshot.
func (w *Warehouse) ApplyComment(ctx context.Context, m *models.TargetMutation) error {
	if err := warehouse.ValidateMutation(m); err != nil {
		return err
	}

	live, exists, err := w.ReadComment(ctx, m.Entity)
	if err != nil {
		return err
	}
	if conflicted(m, live, exists) {
		return fmt.Errorf("%w: live comment for %s changed since read", apperrors.ErrApplyConflict, m.Entity)
	}

	// Identifiers passed the allow-list pattern and the value is quoted as
	// a literal; COMMENT ON does not support bind parameters.
	target := fmt.Sprintf("%q.%q", m.Entity.Schema, m.Entity.Table)
	var stmt string
	if m.Entity.IsColumn() {
		stmt = fmt.Sprintf("COMMENT ON COLUMN %s.%q IS %s",
			target, m.Entity.Column, warehouse.QuoteLiteral(m.NewValue))
	} else {
		stmt = fmt.Sprintf("COMMENT ON TABLE %s IS %s",
			target, warehouse.QuoteLiteral(m.NewValue))
	}

	if _, err := w.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to apply comment for %s: %w", m.Entity, err)
	}

	w.logger.Info("Applied comment",
		zap.String("entity", m.Entity.String()),
		zap.Bool("column", m.Entity.IsColumn()))
	return nil
}

// Close releases the pool.
func (w *Warehouse) Close() error {
	w.pool.Close()
	return nil
}

// conflicted reports whether the live value diverged from the mutation's
// old-value snapshot. A nil OldValue means "expected absent".
func conflicted(m *models.TargetMutation, live string, exists bool) bool {
	if m.OldValue == nil {
		return exists && live != ""
	}
	return !exists || live != *m.OldValue
}
