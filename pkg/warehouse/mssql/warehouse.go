// Package mssql implements the warehouse comment backend for SQL Server
// using MS_Description extended properties.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/logging"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/warehouse"
)

// Warehouse applies comment metadata as MS_Description extended properties.
type Warehouse struct {
	db     *sql.DB
	logger *zap.Logger
}

// New connects to the configured SQL Server warehouse.
func New(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (*Warehouse, error) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.SSLMode == "disable" {
		query.Add("encrypt", "false")
	} else {
		query.Add("encrypt", "true")
	}

	connStr := fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		query.Encode())

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %s", logging.SanitizeError(err))
	}

	logger.Info("Connected to warehouse",
		zap.String("type", "mssql"),
		zap.String("target", logging.SanitizeConnectionString(connStr)))
	return &Warehouse{
		db:     db,
		logger: logger.Named("warehouse_mssql"),
	}, nil
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

// Type returns the backend identifier.
func (w *Warehouse) Type() string {
	return "mssql"
}

// CheckConnection verifies the warehouse is reachable.
func (w *Warehouse) CheckConnection(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// ReadComment returns the live MS_Description value for a table or column.
func (w *Warehouse) ReadComment(ctx context.Context, entity models.EntityRef) (string, bool, error) {
	// Confirm the entity exists before looking for a description; an
	// extended property is absent both for missing entities and for
	// entities that simply have no comment yet.
	var objectID int64
	err := w.db.QueryRowContext(ctx,
		"SELECT object_id(@p1)",
		fmt.Sprintf("[%s].[%s]", entity.Schema, entity.Table)).Scan(&objectID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && objectID == 0) {
		return "", false, fmt.Errorf("entity %s: %w", entity, apperrors.ErrNotFound)
	}
	if err != nil {
		// object_id() returns NULL for unknown objects, which Scan reports
		// as a conversion error on int64.
		return "", false, fmt.Errorf("entity %s: %w", entity, apperrors.ErrNotFound)
	}

	var comment string
	if entity.IsColumn() {
		var columnID int64
		err = w.db.QueryRowContext(ctx, `
			SELECT column_id FROM sys.columns
			WHERE object_id = @p1 AND name = @p2`,
			objectID, entity.Column).Scan(&columnID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("entity %s: %w", entity, apperrors.ErrNotFound)
		}
		if err != nil {
			return "", false, fmt.Errorf("failed to resolve column for %s: %w", entity, err)
		}
		err = w.db.QueryRowContext(ctx, `
			SELECT CAST(value AS NVARCHAR(MAX)) FROM sys.extended_properties
			WHERE class = 1 AND major_id = @p1 AND minor_id = @p2 AND name = 'MS_Description'`,
			objectID, columnID).Scan(&comment)
	} else {
		err = w.db.QueryRowContext(ctx, `
			SELECT CAST(value AS NVARCHAR(MAX)) FROM sys.extended_properties
			WHERE class = 1 AND major_id = @p1 AND minor_id = 0 AND name = 'MS_Description'`,
			objectID).Scan(&comment)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read comment for %s: %w", entity, err)
	}
	return comment, true, nil
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

	proc := "sp_addextendedproperty"
	if exists {
		proc = "sp_updateextendedproperty"
	}

	args := []any{
		sql.Named("name", "MS_Description"),
		sql.Named("value", m.NewValue),
		sql.Named("level0type", "SCHEMA"),
		sql.Named("level0name", m.Entity.Schema),
		sql.Named("level1type", "TABLE"),
		sql.Named("level1name", m.Entity.Table),
	}
	stmt := fmt.Sprintf(`EXEC %s
		@name = @name, @value = @value,
		@level0type = @level0type, @level0name = @level0name,
		@level1type = @level1type, @level1name = @level1name`, proc)

	if m.Entity.IsColumn() {
		args = append(args,
			sql.Named("level2type", "COLUMN"),
			sql.Named("level2name", m.Entity.Column))
		stmt += ", @level2type = @level2type, @level2name = @level2name"
	}

	if _, err := w.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to apply comment for %s: %w", m.Entity, err)
	}

	w.logger.Info("Applied comment",
		zap.String("entity", m.Entity.String()),
		zap.Bool("column", m.Entity.IsColumn()))
	return nil
}

// Close releases the connection pool.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

func conflicted(m *models.TargetMutation, live string, exists bool) bool {
	if m.OldValue == nil {
		return exists && live != ""
	}
	return !exists || live != *m.OldValue
}
