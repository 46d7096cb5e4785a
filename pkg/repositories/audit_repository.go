package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snowlink-io/snowlink-engine/pkg/database"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// AuditRepository persists immutable pipeline decision records.
type AuditRepository interface {
	// Record inserts one audit event.
	Record(ctx context.Context, event *models.AuditEvent) error

	// ListForEntity returns events for one entity, newest first, bounded.
	ListForEntity(ctx context.Context, entityKey string, limit int) ([]*models.AuditEvent, error)
}

type auditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *database.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Record(ctx context.Context, event *models.AuditEvent) error {
	detail := []byte("{}")
	if event.Detail != nil {
		var err error
		if detail, err = json.Marshal(event.Detail); err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (id, event_type, entity_key, source_system, document_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.EventType,
		nullIfEmpty(event.EntityKey),
		nullIfEmpty(event.SourceSystem),
		nullIfEmpty(event.DocumentID),
		detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) ListForEntity(ctx context.Context, entityKey string, limit int) ([]*models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, event_type, entity_key, source_system, document_id, detail, created_at
		FROM audit_events
		WHERE entity_key = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, entityKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		ev := &models.AuditEvent{}
		var entity, source, doc *string
		var detail []byte
		if err := rows.Scan(&ev.ID, &ev.EventType, &entity, &source, &doc, &detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if entity != nil {
			ev.EntityKey = *entity
		}
		if source != nil {
			ev.SourceSystem = *source
		}
		if doc != nil {
			ev.DocumentID = *doc
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &ev.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
