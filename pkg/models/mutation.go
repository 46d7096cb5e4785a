package models

import (
	"time"

	"github.com/google/uuid"
)

// Mutation status constants. Failed mutations are retried on the next
// cycle, not discarded.
const (
	MutationStatusPending = "pending"
	MutationStatusApplied = "applied"
	MutationStatusFailed  = "failed"
)

// TargetMutation is a pending or applied change to a warehouse comment.
type TargetMutation struct {
	ID     uuid.UUID `json:"id"`
	Entity EntityRef `json:"entity"`

	// OldValue is the live comment observed when the mutation was computed,
	// nil when the entity had no comment. Used for optimistic concurrency.
	OldValue *string `json:"old_value,omitempty"`
	NewValue string  `json:"new_value"`

	FactID uuid.UUID `json:"fact_id"`

	// SourceSystem is the source whose fact produced this mutation. A
	// non-terminal mutation withholds that source's checkpoint until a
	// later cycle applies it.
	SourceSystem string `json:"source_system"`

	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// NewTargetMutation creates a pending mutation for an entity.
func NewTargetMutation(entity EntityRef, oldValue *string, newValue string, factID uuid.UUID, sourceSystem string) *TargetMutation {
	return &TargetMutation{
		ID:           uuid.New(),
		Entity:       entity,
		OldValue:     oldValue,
		NewValue:     newValue,
		FactID:       factID,
		SourceSystem: sourceSystem,
		Status:       MutationStatusPending,
		CreatedAt:    time.Now(),
	}
}

// IsTerminal reports whether the mutation reached applied or failed.
func (m *TargetMutation) IsTerminal() bool {
	return m.Status == MutationStatusApplied || m.Status == MutationStatusFailed
}
