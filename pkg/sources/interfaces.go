// Package sources defines the change-source adapter contract and the
// registry through which concrete source backends are discovered.
package sources

import (
	"context"
	"time"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// Source is a system of record for schema documentation (ticket tracker,
// wiki). Implementations live in subpackages and self-register via init().
type Source interface {
	// Type returns the source system identifier ("jira", "confluence").
	Type() string

	// CheckConnection verifies credentials and reachability.
	CheckConnection(ctx context.Context) error

	// ListChanged returns references to documents modified since the given
	// time, ordered oldest first. It never fetches document bodies.
	ListChanged(ctx context.Context, since time.Time) ([]models.DocumentRef, error)

	// Fetch retrieves an immutable content snapshot for one document.
	// Returns apperrors.ErrNotFound for deleted or inaccessible documents
	// and *apperrors.RateLimitedError when the upstream throttles us.
	Fetch(ctx context.Context, ref models.DocumentRef) (*models.Document, error)
}
