package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// MemoryEntityRecordRepository is an in-process EntityRecordRepository used
// by tests and by single-node runs without a checkpoint database.
type MemoryEntityRecordRepository struct {
	mu      sync.RWMutex
	records map[string]*models.EntityRecord
}

// NewMemoryEntityRecordRepository creates an empty in-memory store.
func NewMemoryEntityRecordRepository() *MemoryEntityRecordRepository {
	return &MemoryEntityRecordRepository{
		records: make(map[string]*models.EntityRecord),
	}
}

var _ EntityRecordRepository = (*MemoryEntityRecordRepository)(nil)

func (r *MemoryEntityRecordRepository) Get(_ context.Context, entity models.EntityRef) (*models.EntityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[entity.String()]
	if !ok {
		return nil, fmt.Errorf("entity record %s: %w", entity, apperrors.ErrNotFound)
	}
	return record.Clone(), nil
}

func (r *MemoryEntityRecordRepository) Save(_ context.Context, record *models.EntityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Entity.String()] = record.Clone()
	return nil
}

func (r *MemoryEntityRecordRepository) List(_ context.Context) ([]*models.EntityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]*models.EntityRecord, 0, len(keys))
	for _, k := range keys {
		records = append(records, r.records[k].Clone())
	}
	return records, nil
}

func (r *MemoryEntityRecordRepository) ListNeedsReview(ctx context.Context) ([]*models.EntityRecord, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var records []*models.EntityRecord
	for _, rec := range all {
		if rec.NeedsReview {
			records = append(records, rec)
		}
	}
	return records, nil
}

// MemoryMutationRepository is an in-process MutationRepository for tests.
type MemoryMutationRepository struct {
	mu        sync.RWMutex
	mutations []*models.TargetMutation
}

// NewMemoryMutationRepository creates an empty in-memory mutation log.
func NewMemoryMutationRepository() *MemoryMutationRepository {
	return &MemoryMutationRepository{}
}

var _ MutationRepository = (*MemoryMutationRepository)(nil)

func (r *MemoryMutationRepository) Create(_ context.Context, m *models.TargetMutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.mutations = append(r.mutations, &cp)
	return nil
}

func (r *MemoryMutationRepository) Update(_ context.Context, m *models.TargetMutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.mutations {
		if existing.ID == m.ID {
			cp := *m
			r.mutations[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("mutation %s: %w", m.ID, apperrors.ErrNotFound)
}

func (r *MemoryMutationRepository) ListPending(_ context.Context) ([]*models.TargetMutation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pending []*models.TargetMutation
	for _, m := range r.mutations {
		if m.Status == models.MutationStatusPending {
			cp := *m
			pending = append(pending, &cp)
		}
	}
	return pending, nil
}

func (r *MemoryMutationRepository) ListForEntity(_ context.Context, entity models.EntityRef) ([]*models.TargetMutation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.TargetMutation
	for i := len(r.mutations) - 1; i >= 0; i-- {
		if r.mutations[i].Entity == entity {
			cp := *r.mutations[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

// MemoryCheckpointRepository is an in-process CheckpointRepository for tests.
type MemoryCheckpointRepository struct {
	mu        sync.RWMutex
	positions map[string]time.Time
}

// NewMemoryCheckpointRepository creates an empty in-memory checkpoint store.
func NewMemoryCheckpointRepository() *MemoryCheckpointRepository {
	return &MemoryCheckpointRepository{positions: make(map[string]time.Time)}
}

var _ CheckpointRepository = (*MemoryCheckpointRepository)(nil)

func (r *MemoryCheckpointRepository) Get(_ context.Context, sourceSystem string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions[sourceSystem], nil
}

func (r *MemoryCheckpointRepository) Advance(_ context.Context, sourceSystem string, position time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if position.After(r.positions[sourceSystem]) {
		r.positions[sourceSystem] = position
	}
	return nil
}

// MemoryBatchRepository is an in-process BatchRepository for tests.
type MemoryBatchRepository struct {
	mu        sync.RWMutex
	summaries []*models.BatchSummary
}

// NewMemoryBatchRepository creates an empty in-memory batch log.
func NewMemoryBatchRepository() *MemoryBatchRepository {
	return &MemoryBatchRepository{}
}

var _ BatchRepository = (*MemoryBatchRepository)(nil)

func (r *MemoryBatchRepository) Save(_ context.Context, summary *models.BatchSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *summary
	r.summaries = append(r.summaries, &cp)
	return nil
}

func (r *MemoryBatchRepository) ListRecent(_ context.Context, limit int) ([]*models.BatchSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var out []*models.BatchSummary
	for i := len(r.summaries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.summaries[i]
		out = append(out, &cp)
	}
	return out, nil
}
