package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Type: "mssql",
		Factory: func(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (warehouse.Warehouse, error) {
			return New(ctx, cfg, logger)
		},
	})
}
