// Package driver schedules the sync pipeline: it polls sources for changed
// documents, accepts webhook change events, and runs batches through
// extraction, reconciliation, warehouse apply, and artifact generation.
package driver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/snowlink-io/snowlink-engine/pkg/artifacts"
	"github.com/snowlink-io/snowlink-engine/pkg/audit"
	"github.com/snowlink-io/snowlink-engine/pkg/config"
	"github.com/snowlink-io/snowlink-engine/pkg/engine"
	"github.com/snowlink-io/snowlink-engine/pkg/extractor"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
	"github.com/snowlink-io/snowlink-engine/pkg/notify"
	"github.com/snowlink-io/snowlink-engine/pkg/repositories"
	"github.com/snowlink-io/snowlink-engine/pkg/retry"
	"github.com/snowlink-io/snowlink-engine/pkg/sources"
)

// gatherWindow is how long the driver waits after the first queued event
// before starting a batch, so bursts of webhook deliveries coalesce.
const gatherWindow = 500 * time.Millisecond

// Deps bundles the pipeline components the driver orchestrates.
type Deps struct {
	Sources     map[string]sources.Source
	Extractor   extractor.Extractor
	Engine      engine.Engine
	Records     repositories.EntityRecordRepository
	Mutations   repositories.MutationRepository
	Checkpoints repositories.CheckpointRepository
	Batches     repositories.BatchRepository
	Generator   artifacts.Generator
	Sink        artifacts.Sink
	Notifier    notify.Notifier
	Audit       audit.Recorder
}

// Driver runs the sync loop.
type Driver struct {
	cfg    *config.DriverConfig
	deps   Deps
	logger *zap.Logger

	events chan models.ChangeEvent

	// queueRetry configures per-task retry behavior inside a batch.
	queueRetry *retry.Config

	// limiters holds one shared token bucket per external system, so poll
	// listing and document fetches draw from the same budget.
	limiters map[string]*rate.Limiter

	mu      sync.Mutex
	pending map[string]bool // dedup keys queued or in flight
}

// New creates a driver. One limiter is allocated per configured source.
func New(cfg *config.DriverConfig, deps Deps, logger *zap.Logger) *Driver {
	limiters := make(map[string]*rate.Limiter, len(deps.Sources))
	burst := int(cfg.SourceRatePerSecond)
	if burst < 1 {
		burst = 1
	}
	for name := range deps.Sources {
		limiters[name] = rate.NewLimiter(rate.Limit(cfg.SourceRatePerSecond), burst)
	}

	return &Driver{
		cfg:        cfg,
		deps:       deps,
		logger:     logger.Named("driver"),
		events:     make(chan models.ChangeEvent, cfg.QueueSize),
		limiters:   limiters,
		pending:    make(map[string]bool),
		queueRetry: retry.DefaultConfig(),
	}
}

// Submit queues a change event, deduplicating at-least-once deliveries by
// (source, document, fingerprint). Returns false when the event was a
// duplicate or the queue is full.
func (d *Driver) Submit(event models.ChangeEvent) bool {
	key := event.DedupKey()

	d.mu.Lock()
	if d.pending[key] {
		d.mu.Unlock()
		d.logger.Debug("Dropping duplicate change event",
			zap.String("source_system", event.SourceSystem),
			zap.String("document_id", event.DocumentID))
		return false
	}
	d.pending[key] = true
	d.mu.Unlock()

	select {
	case d.events <- event:
		return true
	default:
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		d.logger.Warn("Change event queue full, dropping event",
			zap.String("source_system", event.SourceSystem),
			zap.String("document_id", event.DocumentID))
		return false
	}
}

// release frees a dedup key once its document reached a batch outcome.
func (d *Driver) release(event models.ChangeEvent) {
	d.mu.Lock()
	delete(d.pending, event.DedupKey())
	d.mu.Unlock()
}

// Run polls sources on the configured interval and processes queued
// events in batches until the context is cancelled. Documents in flight
// when cancellation hits are simply not checkpointed and reappear in the
// next run's poll.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	// Initial poll so a fresh start does not wait a full interval.
	d.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			d.poll(ctx)

		case first := <-d.events:
			batch := d.gather(ctx, first)
			if len(batch) == 0 {
				continue
			}
			d.processBatch(ctx, batch)
		}
	}
}

// gather collects the first event plus everything that arrives within the
// gather window into one batch.
func (d *Driver) gather(ctx context.Context, first models.ChangeEvent) []models.ChangeEvent {
	batch := []models.ChangeEvent{first}
	timer := time.NewTimer(gatherWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return batch
		case ev := <-d.events:
			batch = append(batch, ev)
		case <-timer.C:
			return batch
		}
	}
}

// poll lists changed documents for every source since its checkpoint and
// queues them oldest first.
func (d *Driver) poll(ctx context.Context) {
	for name, src := range d.deps.Sources {
		since, err := d.deps.Checkpoints.Get(ctx, name)
		if err != nil {
			d.logger.Error("Failed to read checkpoint",
				zap.String("source_system", name), zap.Error(err))
			continue
		}

		if err := d.limiters[name].Wait(ctx); err != nil {
			return
		}
		refs, err := src.ListChanged(ctx, since)
		if err != nil {
			d.logger.Error("Failed to list changed documents",
				zap.String("source_system", name), zap.Error(err))
			continue
		}

		for _, ref := range refs {
			d.Submit(models.ChangeEvent{
				SourceSystem: ref.SourceSystem,
				DocumentID:   ref.DocumentID,
			})
		}

		if len(refs) > 0 {
			d.logger.Info("Poll found changed documents",
				zap.String("source_system", name),
				zap.Int("count", len(refs)))
		}
	}
}
