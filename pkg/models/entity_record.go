package models

import "time"

// Record state constants. A record has no terminal state; Applied is
// re-entered every time a later accepted fact produces a mutation.
const (
	RecordStateUnseen     = "unseen"
	RecordStateAccepted   = "accepted"
	RecordStateSuperseded = "superseded"
	RecordStateConflicted = "conflicted"
	RecordStateApplied    = "applied"
)

// DefaultHistoryLimit bounds the superseded-fact history per record.
const DefaultHistoryLimit = 10

// EntityRecord is the durable reconciliation state for one warehouse
// entity. It is the single source of truth: accepted facts live on it,
// rejected facts are discarded.
type EntityRecord struct {
	Entity EntityRef `json:"entity"`
	State  string    `json:"state"`

	// Current is the accepted fact, nil until one is accepted.
	Current *SchemaFact `json:"current,omitempty"`

	// SourceFingerprints maps source system to the fingerprint of the last
	// document processed for this entity from that source. Used for the
	// staleness check.
	SourceFingerprints map[string]string `json:"source_fingerprints"`

	// History holds superseded and conflict-losing facts, newest first,
	// bounded by the configured history limit.
	History []SchemaFact `json:"history,omitempty"`

	// NeedsReview marks a low-confidence current fact that was accepted
	// into state but gated from producing a mutation.
	NeedsReview bool `json:"needs_review,omitempty"`

	// LastAppliedValue is the comment text last written to the warehouse,
	// nil if never applied. Mutations are computed against this, not
	// against the previously accepted fact.
	LastAppliedValue *string    `json:"last_applied_value,omitempty"`
	LastAppliedAt    *time.Time `json:"last_applied_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntityRecord returns an unseen record for an entity.
func NewEntityRecord(ref EntityRef) *EntityRecord {
	return &EntityRecord{
		Entity:             ref,
		State:              RecordStateUnseen,
		SourceFingerprints: make(map[string]string),
	}
}

// FingerprintFor returns the last processed fingerprint for a source, or "".
func (r *EntityRecord) FingerprintFor(source string) string {
	if r.SourceFingerprints == nil {
		return ""
	}
	return r.SourceFingerprints[source]
}

// PushHistory prepends a fact to history, evicting the oldest beyond limit.
func (r *EntityRecord) PushHistory(fact SchemaFact, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	r.History = append([]SchemaFact{fact}, r.History...)
	if len(r.History) > limit {
		r.History = r.History[:limit]
	}
}

// Clone returns a deep copy, used when snapshotting records for artifact
// generation so generators never observe in-flight mutation.
func (r *EntityRecord) Clone() *EntityRecord {
	cp := *r

	if r.Current != nil {
		cur := *r.Current
		cp.Current = &cur
	}
	if r.LastAppliedValue != nil {
		v := *r.LastAppliedValue
		cp.LastAppliedValue = &v
	}
	if r.LastAppliedAt != nil {
		t := *r.LastAppliedAt
		cp.LastAppliedAt = &t
	}

	cp.SourceFingerprints = make(map[string]string, len(r.SourceFingerprints))
	for k, v := range r.SourceFingerprints {
		cp.SourceFingerprints[k] = v
	}

	cp.History = make([]SchemaFact, len(r.History))
	copy(cp.History, r.History)

	return &cp
}
