package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit event types.
const (
	AuditFactAccepted     = "fact_accepted"
	AuditFactSuperseded   = "fact_superseded"
	AuditConflictResolved = "conflict_resolved"
	AuditMutationApplied  = "mutation_applied"
	AuditMutationFailed   = "mutation_failed"
	AuditMutationRejected = "mutation_rejected"
	AuditDocumentSkipped  = "document_skipped"
	AuditBatchFinished    = "batch_finished"
)

// AuditEvent is one immutable pipeline decision record.
type AuditEvent struct {
	ID           uuid.UUID      `json:"id"`
	EventType    string         `json:"event_type"`
	EntityKey    string         `json:"entity_key,omitempty"`
	SourceSystem string         `json:"source_system,omitempty"`
	DocumentID   string         `json:"document_id,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
