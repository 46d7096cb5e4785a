package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

func (e *engine) ApplyMutation(ctx context.Context, m *models.TargetMutation) error {
	mu := e.lockFor(m.Entity)
	mu.Lock()
	defer mu.Unlock()

	m.Attempts++
	err := e.warehouse.ApplyComment(ctx, m)
	if errors.Is(err, apperrors.ErrApplyConflict) {
		err = e.retryConflicted(ctx, m)
	}

	switch {
	case err == nil:
		return e.markApplied(ctx, m)

	case errors.Is(err, apperrors.ErrApplyRejected):
		// Safety rejections are terminal. Retrying would re-run the same
		// guard against the same value.
		m.Status = models.MutationStatusFailed
		m.Error = err.Error()
		if uerr := e.mutations.Update(ctx, m); uerr != nil {
			return uerr
		}
		e.audit.Record(ctx, &models.AuditEvent{
			EventType: models.AuditMutationRejected,
			EntityKey: m.Entity.String(),
			Detail:    map[string]any{"mutation_id": m.ID.String(), "error": m.Error},
		})
		e.logger.Warn("Mutation rejected by safety guard",
			zap.String("entity", m.Entity.String()),
			zap.Error(err))
		return err

	default:
		// Transient failure. The mutation stays pending so the next cycle
		// picks it up again.
		m.Error = err.Error()
		if uerr := e.mutations.Update(ctx, m); uerr != nil {
			return uerr
		}
		e.audit.Record(ctx, &models.AuditEvent{
			EventType: models.AuditMutationFailed,
			EntityKey: m.Entity.String(),
			Detail: map[string]any{
				"mutation_id": m.ID.String(),
				"attempts":    m.Attempts,
				"error":       m.Error,
			},
		})
		return err
	}
}

// retryConflicted handles an optimistic-concurrency conflict by re-reading
// the live value and retrying exactly once against the fresh snapshot. A
// live value already equal to the target counts as applied.
func (e *engine) retryConflicted(ctx context.Context, m *models.TargetMutation) error {
	live, exists, err := e.warehouse.ReadComment(ctx, m.Entity)
	if err != nil {
		return fmt.Errorf("%w: recompute read failed: %v", apperrors.ErrApplyConflict, err)
	}
	if exists && live == m.NewValue {
		return nil
	}

	if exists {
		m.OldValue = &live
	} else {
		m.OldValue = nil
	}

	m.Attempts++
	return e.warehouse.ApplyComment(ctx, m)
}

// markApplied moves the mutation to applied and records the written value
// on the entity record so later facts diff against what is actually live.
func (e *engine) markApplied(ctx context.Context, m *models.TargetMutation) error {
	now := time.Now()
	m.Status = models.MutationStatusApplied
	m.AppliedAt = &now
	m.Error = ""
	if err := e.mutations.Update(ctx, m); err != nil {
		return err
	}

	record, err := e.records.Get(ctx, m.Entity)
	if err != nil {
		return fmt.Errorf("failed to load record after apply for %s: %w", m.Entity, err)
	}
	record.LastAppliedValue = &m.NewValue
	record.LastAppliedAt = &now
	record.State = models.RecordStateApplied
	record.UpdatedAt = now
	if err := e.records.Save(ctx, record); err != nil {
		return err
	}

	e.audit.Record(ctx, &models.AuditEvent{
		EventType: models.AuditMutationApplied,
		EntityKey: m.Entity.String(),
		Detail: map[string]any{
			"mutation_id": m.ID.String(),
			"fact_id":     m.FactID.String(),
			"new_value":   m.NewValue,
		},
	})
	e.logger.Info("Mutation applied",
		zap.String("entity", m.Entity.String()),
		zap.Int("attempts", m.Attempts))
	return nil
}
