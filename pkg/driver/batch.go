package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/workqueue"
)

// batchCollector accumulates per-document outcomes under one batch.
type batchCollector struct {
	mu        sync.Mutex
	summary   *models.BatchSummary
	positions map[string]time.Time // max processed document position per source
	blocked   map[string]bool      // sources whose checkpoint must not advance
}

func newBatchCollector() *batchCollector {
	return &batchCollector{
		summary: &models.BatchSummary{
			ID:        uuid.New(),
			StartedAt: time.Now(),
		},
		positions: make(map[string]time.Time),
		blocked:   make(map[string]bool),
	}
}

func (c *batchCollector) skip(ev models.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.DocumentsSkipped++
}

func (c *batchCollector) fail(ev models.ChangeEvent, err error, requeued bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.Failures = append(c.summary.Failures, models.DocumentFailure{
		SourceSystem: ev.SourceSystem,
		DocumentID:   ev.DocumentID,
		Reason:       err.Error(),
		Requeued:     requeued,
	})
	if requeued {
		c.blocked[ev.SourceSystem] = true
	}
}

func (c *batchCollector) success(ev models.ChangeEvent, doc *models.Document, conflicts []models.ConflictEvent, needsAttention []string, entitiesUpdated int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.summary.DocumentsProcessed++
	c.summary.EntitiesUpdated += entitiesUpdated
	c.summary.Conflicts = append(c.summary.Conflicts, conflicts...)
	c.summary.NeedsAttention = append(c.summary.NeedsAttention, needsAttention...)

	if doc.LastModified.After(c.positions[ev.SourceSystem]) {
		c.positions[ev.SourceSystem] = doc.LastModified
	}
}

// advancePosition tracks the max processed document position per source.
// Called for successes and for terminal failures that must not hold the
// checkpoint back.
func (c *batchCollector) advancePosition(source string, position time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if position.After(c.positions[source]) {
		c.positions[source] = position
	}
}

func (c *batchCollector) blockSource(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked[source] = true
}

// blockAllSources withholds every checkpoint this batch would advance.
func (c *batchCollector) blockAllSources() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for source := range c.positions {
		c.blocked[source] = true
	}
}

// processBatch runs one batch end to end: extract and reconcile every
// document, apply the resulting mutations, regenerate artifacts, persist
// the summary, and advance checkpoints for sources with no open work.
func (d *Driver) processBatch(ctx context.Context, events []models.ChangeEvent) {
	collector := newBatchCollector()
	queue := workqueue.New(d.cfg.Workers, d.logger, workqueue.WithRetryConfig(d.queueRetry))

	for _, ev := range events {
		ev := ev
		queue.Enqueue(newDocumentTask(ev, func(taskCtx context.Context) error {
			defer d.release(ev)
			d.processDocument(taskCtx, ev, collector)
			return nil
		}))
	}
	if err := queue.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Error("Document phase failed", zap.Error(err))
	}
	if ctx.Err() != nil {
		// Cancelled mid-batch: nothing is checkpointed, the next run's
		// poll picks these documents up again.
		return
	}

	d.applyMutations(ctx, collector, queue)
	if ctx.Err() != nil {
		return
	}

	written := d.regenerateArtifacts(ctx)
	d.finishBatch(ctx, collector, written)
}

// processDocument fetches, extracts, and reconciles one changed document.
// All failure classification happens here so the summary carries every
// terminal outcome.
func (d *Driver) processDocument(ctx context.Context, ev models.ChangeEvent, collector *batchCollector) {
	src, ok := d.deps.Sources[ev.SourceSystem]
	if !ok {
		collector.fail(ev, fmt.Errorf("source system %q is not configured", ev.SourceSystem), false)
		return
	}

	if err := d.limiters[ev.SourceSystem].Wait(ctx); err != nil {
		collector.fail(ev, err, true)
		return
	}
	doc, err := src.Fetch(ctx, models.DocumentRef{
		SourceSystem: ev.SourceSystem,
		DocumentID:   ev.DocumentID,
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		// Deleted upstream between notification and fetch.
		collector.skip(ev)
		return
	}
	if err != nil {
		collector.fail(ev, err, apperrors.IsRetryable(err))
		return
	}

	facts, err := d.deps.Extractor.Extract(ctx, doc)
	if errors.Is(err, apperrors.ErrExtractionMalformed) {
		// Bad model output for this content will stay bad; flag for a
		// human instead of requeueing, and let the checkpoint pass it.
		collector.fail(ev, err, false)
		collector.advancePosition(ev.SourceSystem, doc.LastModified)
		return
	}
	if err != nil {
		collector.fail(ev, err, apperrors.IsRetryable(err))
		return
	}

	result, err := d.deps.Engine.ReconcileDocument(ctx, doc, facts)
	if err != nil {
		collector.fail(ev, err, true)
		return
	}

	collector.success(ev, doc, result.Conflicts, result.NeedsAttention, result.EntitiesUpdated)
}

// applyMutations runs the warehouse phase. The work set is every pending
// mutation in the store, not just this batch's: a mutation whose apply
// failed transiently in an earlier cycle is invisible to reconciliation
// (its document's fingerprint already advanced), so the mutation log is
// the only place it survives. Mutations left pending after this phase
// block their originating source's checkpoint.
func (d *Driver) applyMutations(ctx context.Context, collector *batchCollector, queue *workqueue.Queue) {
	pending, err := d.deps.Mutations.ListPending(ctx)
	if err != nil {
		d.logger.Error("Failed to list pending mutations", zap.Error(err))
		collector.blockAllSources()
		return
	}

	for _, m := range pending {
		m := m
		queue.Enqueue(newMutationTask(m, func(taskCtx context.Context) error {
			return d.deps.Engine.ApplyMutation(taskCtx, m)
		}))
	}
	if err := queue.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("Mutation phase finished with failures", zap.Error(err))
	}

	for _, m := range pending {
		if !m.IsTerminal() {
			collector.blockSource(m.SourceSystem)
		}
	}
}

func (d *Driver) regenerateArtifacts(ctx context.Context) int {
	records, err := d.deps.Records.List(ctx)
	if err != nil {
		d.logger.Error("Failed to snapshot records for artifacts", zap.Error(err))
		return 0
	}
	generated, err := d.deps.Generator.Generate(records)
	if err != nil {
		d.logger.Error("Failed to generate artifacts", zap.Error(err))
		return 0
	}
	if err := d.deps.Sink.Write(generated); err != nil {
		d.logger.Error("Failed to write artifacts", zap.Error(err))
		return 0
	}
	return len(generated)
}

// finishBatch persists the summary, notifies channels, and advances
// checkpoints for sources with nothing left open.
func (d *Driver) finishBatch(ctx context.Context, collector *batchCollector, artifactsWritten int) {
	collector.mu.Lock()
	summary := collector.summary
	summary.FinishedAt = time.Now()
	positions := collector.positions
	blocked := collector.blocked
	collector.mu.Unlock()

	if err := d.deps.Batches.Save(ctx, summary); err != nil {
		d.logger.Error("Failed to persist batch summary", zap.Error(err))
	}
	d.deps.Audit.Record(ctx, &models.AuditEvent{
		EventType: models.AuditBatchFinished,
		Detail: map[string]any{
			"batch_id":            summary.ID.String(),
			"documents_processed": summary.DocumentsProcessed,
			"documents_skipped":   summary.DocumentsSkipped,
			"entities_updated":    summary.EntitiesUpdated,
			"conflicts":           len(summary.Conflicts),
			"failures":            len(summary.Failures),
			"artifacts_written":   artifactsWritten,
		},
	})
	d.deps.Notifier.NotifyBatch(ctx, summary)

	for source, position := range positions {
		if blocked[source] {
			d.logger.Info("Withholding checkpoint, source has open work",
				zap.String("source_system", source))
			continue
		}
		if err := d.deps.Checkpoints.Advance(ctx, source, position); err != nil {
			d.logger.Error("Failed to advance checkpoint",
				zap.String("source_system", source), zap.Error(err))
		}
	}

	d.logger.Info("Batch finished",
		zap.String("batch_id", summary.ID.String()),
		zap.Int("documents_processed", summary.DocumentsProcessed),
		zap.Int("documents_skipped", summary.DocumentsSkipped),
		zap.Int("entities_updated", summary.EntitiesUpdated),
		zap.Int("conflicts", len(summary.Conflicts)),
		zap.Int("failures", len(summary.Failures)))
}
