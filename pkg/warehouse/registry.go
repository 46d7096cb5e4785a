package warehouse

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
)

// Registration contains info + factory for creating a warehouse backend.
type Registration struct {
	Type    string
	Factory func(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (Warehouse, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each backend's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Type] = reg
}

// IsRegistered checks if a backend type is available.
func IsRegistered(warehouseType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[warehouseType]
	return ok
}

// New builds the configured warehouse backend.
func New(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (Warehouse, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("warehouse type %q is not registered", cfg.Type)
	}
	return reg.Factory(ctx, cfg, logger)
}
