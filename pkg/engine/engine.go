// Package engine implements reconciliation of extracted schema facts
// against durable entity records and the warehouse target state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/audit"
	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/repositories"
	"github.com/snowlink-io/snowlink-engine/pkg/warehouse"
)

// lockStripes sizes the striped mutex set that serializes work per entity.
const lockStripes = 64

// Result is the outcome of reconciling one document's facts.
type Result struct {
	// Mutations are the pending warehouse mutations this document produced.
	Mutations []*models.TargetMutation
	// Conflicts are the cross-source conflicts resolved by precedence.
	Conflicts []models.ConflictEvent
	// NeedsAttention lists entity keys whose facts were gated for review.
	NeedsAttention []string
	// EntitiesUpdated counts records whose state changed.
	EntitiesUpdated int
}

// Engine reconciles extracted facts into entity records and applies the
// resulting mutations to the warehouse.
type Engine interface {
	// ReconcileDocument folds a document's facts into the entity records,
	// resolving conflicts and emitting pending mutations. Facts for
	// unchanged content are skipped without touching records.
	ReconcileDocument(ctx context.Context, doc *models.Document, facts []models.SchemaFact) (*Result, error)

	// ApplyMutation writes one pending mutation to the warehouse. A
	// concurrent-modification conflict is recomputed and retried once;
	// a safety rejection is terminal.
	ApplyMutation(ctx context.Context, m *models.TargetMutation) error
}

type engine struct {
	records   repositories.EntityRecordRepository
	mutations repositories.MutationRepository
	warehouse warehouse.Warehouse
	audit     audit.Recorder
	cfg       *config.ReconcileConfig
	logger    *zap.Logger

	locks [lockStripes]sync.Mutex
}

// New creates the reconciliation engine.
func New(
	records repositories.EntityRecordRepository,
	mutations repositories.MutationRepository,
	wh warehouse.Warehouse,
	recorder audit.Recorder,
	cfg *config.ReconcileConfig,
	logger *zap.Logger,
) Engine {
	return &engine{
		records:   records,
		mutations: mutations,
		warehouse: wh,
		audit:     recorder,
		cfg:       cfg,
		logger:    logger.Named("engine"),
	}
}

var _ Engine = (*engine)(nil)

// lockFor returns the stripe mutex serializing one entity's record.
func (e *engine) lockFor(entity models.EntityRef) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(entity.String()))
	return &e.locks[h.Sum32()%lockStripes]
}

func (e *engine) ReconcileDocument(ctx context.Context, doc *models.Document, facts []models.SchemaFact) (*Result, error) {
	result := &Result{}

	for i := range facts {
		fact := facts[i]
		if err := e.reconcileFact(ctx, doc, fact, result); err != nil {
			return nil, fmt.Errorf("failed to reconcile fact for %s: %w", fact.Entity, err)
		}
	}

	e.logger.Debug("Reconciled document",
		zap.String("source_system", doc.SourceSystem),
		zap.String("document_id", doc.DocumentID),
		zap.Int("facts", len(facts)),
		zap.Int("mutations", len(result.Mutations)),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, nil
}

// reconcileFact folds a single fact into its entity record under the
// entity's stripe lock.
func (e *engine) reconcileFact(ctx context.Context, doc *models.Document, fact models.SchemaFact, result *Result) error {
	mu := e.lockFor(fact.Entity)
	mu.Lock()
	defer mu.Unlock()

	record, err := e.records.Get(ctx, fact.Entity)
	if errors.Is(err, apperrors.ErrNotFound) {
		record = models.NewEntityRecord(fact.Entity)
	} else if err != nil {
		return err
	}

	// Unchanged content from the same source is a no-op. This is what
	// makes redelivered webhooks and overlapping polls idempotent.
	if record.FingerprintFor(fact.SourceSystem) == fact.Fingerprint {
		e.audit.Record(ctx, &models.AuditEvent{
			EventType:    models.AuditDocumentSkipped,
			EntityKey:    fact.Entity.String(),
			SourceSystem: fact.SourceSystem,
			DocumentID:   fact.DocumentID,
			Detail:       map[string]any{"fingerprint": fact.Fingerprint},
		})
		return nil
	}

	accepted := e.fold(ctx, record, fact, result)

	record.SourceFingerprints[fact.SourceSystem] = fact.Fingerprint
	record.UpdatedAt = time.Now()

	if accepted {
		result.EntitiesUpdated++
		if record.NeedsReview {
			result.NeedsAttention = append(result.NeedsAttention, record.Entity.String())
		} else if m := e.planMutation(ctx, record, fact); m != nil {
			if err := e.mutations.Create(ctx, m); err != nil {
				return err
			}
			result.Mutations = append(result.Mutations, m)
		}
	}

	return e.records.Save(ctx, record)
}

// fold decides whether the fact becomes the record's current fact and
// updates state accordingly. Returns false when an existing fact from the
// authoritative source takes precedence over the incoming one.
func (e *engine) fold(ctx context.Context, record *models.EntityRecord, fact models.SchemaFact, result *Result) bool {
	current := record.Current

	switch {
	case current == nil:
		record.Current = &fact
		record.State = models.RecordStateAccepted
		e.audit.Record(ctx, &models.AuditEvent{
			EventType:    models.AuditFactAccepted,
			EntityKey:    record.Entity.String(),
			SourceSystem: fact.SourceSystem,
			DocumentID:   fact.DocumentID,
			Detail:       map[string]any{"fact_id": fact.ID.String(), "confidence": fact.Confidence},
		})

	case current.SourceSystem == fact.SourceSystem:
		record.PushHistory(*current, e.cfg.HistoryLimit)
		record.Current = &fact
		record.State = models.RecordStateSuperseded
		e.audit.Record(ctx, &models.AuditEvent{
			EventType:    models.AuditFactSuperseded,
			EntityKey:    record.Entity.String(),
			SourceSystem: fact.SourceSystem,
			DocumentID:   fact.DocumentID,
			Detail: map[string]any{
				"superseded_fact_id": current.ID.String(),
				"fact_id":            fact.ID.String(),
			},
		})

	default:
		// Cross-source conflict: the configured authoritative source wins
		// regardless of arrival order. The losing fact goes to history and
		// the conflict is always reported.
		incomingWins := fact.SourceSystem == e.cfg.AuthoritativeSource

		conflict := models.ConflictEvent{
			Entity:     record.Entity,
			DocumentID: fact.DocumentID,
			OccurredAt: time.Now(),
		}
		if incomingWins {
			conflict.WinningSource = fact.SourceSystem
			conflict.LosingSource = current.SourceSystem
			conflict.LosingFactID = current.ID
			record.PushHistory(*current, e.cfg.HistoryLimit)
			record.Current = &fact
		} else {
			conflict.WinningSource = current.SourceSystem
			conflict.LosingSource = fact.SourceSystem
			conflict.LosingFactID = fact.ID
			record.PushHistory(fact, e.cfg.HistoryLimit)
		}
		record.State = models.RecordStateConflicted
		result.Conflicts = append(result.Conflicts, conflict)

		e.audit.Record(ctx, &models.AuditEvent{
			EventType:    models.AuditConflictResolved,
			EntityKey:    record.Entity.String(),
			SourceSystem: fact.SourceSystem,
			DocumentID:   fact.DocumentID,
			Detail: map[string]any{
				"winning_source": conflict.WinningSource,
				"losing_source":  conflict.LosingSource,
				"losing_fact_id": conflict.LosingFactID.String(),
			},
		})
		if !incomingWins {
			return false
		}
	}

	record.NeedsReview = record.Current.Confidence < e.cfg.ConfidenceThreshold
	return true
}

// planMutation builds a pending mutation when the accepted fact's rendered
// value differs from what was last applied. Equal values produce nothing,
// keeping mutations minimal.
func (e *engine) planMutation(_ context.Context, record *models.EntityRecord, fact models.SchemaFact) *models.TargetMutation {
	value := RenderValue(&fact)
	if record.LastAppliedValue != nil && *record.LastAppliedValue == value {
		return nil
	}
	return models.NewTargetMutation(record.Entity, record.LastAppliedValue, value, fact.ID, fact.SourceSystem)
}

// RenderValue turns a fact into the comment text written to the warehouse.
func RenderValue(f *models.SchemaFact) string {
	if f.Owner == "" {
		return f.Description
	}
	return fmt.Sprintf("%s (owner: %s)", f.Description, f.Owner)
}
