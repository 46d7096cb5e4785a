// Package audit records pipeline decisions as immutable events. Recording
// is best-effort: an audit failure is logged, never propagated.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/repositories"
)

// Recorder is the capability the pipeline components depend on.
type Recorder interface {
	Record(ctx context.Context, event *models.AuditEvent)
}

type recorder struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewRecorder creates a Postgres-backed audit recorder.
func NewRecorder(repo repositories.AuditRepository, logger *zap.Logger) Recorder {
	return &recorder{
		repo:   repo,
		logger: logger.Named("audit"),
	}
}

var _ Recorder = (*recorder)(nil)

func (r *recorder) Record(ctx context.Context, event *models.AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if err := r.repo.Record(ctx, event); err != nil {
		r.logger.Warn("Failed to record audit event",
			zap.String("event_type", event.EventType),
			zap.String("entity_key", event.EntityKey),
			zap.Error(err))
	}
}

// NopRecorder discards events; used in tests and when auditing is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *models.AuditEvent) {}

var _ Recorder = NopRecorder{}
