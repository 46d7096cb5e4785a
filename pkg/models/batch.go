package models

import (
	"time"

	"github.com/google/uuid"
)

// ConflictEvent records a cross-source conflict that was resolved by
// precedence. Conflicts are reported, never silently dropped.
type ConflictEvent struct {
	Entity        EntityRef `json:"entity"`
	WinningSource string    `json:"winning_source"`
	LosingSource  string    `json:"losing_source"`
	LosingFactID  uuid.UUID `json:"losing_fact_id"`
	DocumentID    string    `json:"document_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// DocumentFailure records a per-document failure within a batch.
type DocumentFailure struct {
	SourceSystem string `json:"source_system"`
	DocumentID   string `json:"document_id"`
	Reason       string `json:"reason"`
	// Requeued is true when the document will be retried next cycle,
	// false when the failure needs human attention.
	Requeued bool `json:"requeued"`
}

// BatchSummary is the per-batch result handed to the notifier and kept
// for the dashboard. Every terminal failure is visible here.
type BatchSummary struct {
	ID                 uuid.UUID         `json:"id"`
	DocumentsProcessed int               `json:"documents_processed"`
	DocumentsSkipped   int               `json:"documents_skipped"`
	EntitiesUpdated    int               `json:"entities_updated"`
	Conflicts          []ConflictEvent   `json:"conflicts,omitempty"`
	Failures           []DocumentFailure `json:"failures,omitempty"`
	NeedsAttention     []string          `json:"needs_attention,omitempty"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
}

// HasRetryableFailures reports whether checkpoint advancement must be
// withheld so requeued documents are reattempted next cycle.
func (s *BatchSummary) HasRetryableFailures() bool {
	for _, f := range s.Failures {
		if f.Requeued {
			return true
		}
	}
	return false
}

// Artifact is one generated documentation file or diagram description for
// a logical grouping. Regenerated wholesale, never patched.
type Artifact struct {
	GroupKey string `json:"group_key"`
	Name     string `json:"name"`
	Content  []byte `json:"content"`
}
