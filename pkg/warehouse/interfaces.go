// Package warehouse defines the target-state reader/writer contract for
// warehouse comment metadata and the registry of concrete backends.
package warehouse

import (
	"context"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// Warehouse reads and writes comment metadata for warehouse entities.
// Implementations live in subpackages and self-register via init().
type Warehouse interface {
	// Type returns the backend identifier ("postgres", "mssql").
	Type() string

	// CheckConnection verifies the warehouse is reachable.
	CheckConnection(ctx context.Context) error

	// ReadComment returns the live comment for an entity. The second return
	// is false when the entity carries no comment. Returns
	// apperrors.ErrNotFound when the entity itself does not exist.
	ReadComment(ctx context.Context, entity models.EntityRef) (string, bool, error)

	// ApplyComment writes a mutation's new value, atomic per entity.
	// Fails with apperrors.ErrApplyConflict when the live value no longer
	// matches the mutation's OldValue snapshot, and with
	// apperrors.ErrApplyRejected when the mutation fails the safety guard.
	ApplyComment(ctx context.Context, m *models.TargetMutation) error

	// Close releases the underlying connections.
	Close() error
}
