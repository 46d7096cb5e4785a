package sources

import (
	"sync"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/config"
)

// Registration contains info + factory for creating a source backend.
type Registration struct {
	Type    string
	Enabled func(cfg *config.Config) bool
	Factory func(cfg *config.Config, logger *zap.Logger) (Source, error)
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

// GetFactory returns the factory for a source type.
// Returns nil if type is not registered.
func GetFactory(sourceType string) func(cfg *config.Config, logger *zap.Logger) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[sourceType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a source type is available.
func IsRegistered(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}

// EnabledSources builds every registered source that is enabled in config.
func EnabledSources(cfg *config.Config, logger *zap.Logger) ([]Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []Source
	for _, reg := range registry {
		if reg.Enabled != nil && !reg.Enabled(cfg) {
			continue
		}
		src, err := reg.Factory(cfg, logger)
		if err != nil {
			return nil, err
		}
		result = append(result, src)
	}
	return result, nil
}
