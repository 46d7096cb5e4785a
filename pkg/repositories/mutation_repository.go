package repositories

import (
	"context"
	"fmt"

	"github.com/snowlink-io/snowlink-engine/pkg/database"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// MutationRepository persists the mutation log. Every computed mutation is
// recorded with its terminal outcome so the applied history is auditable.
type MutationRepository interface {
	// Create inserts a pending mutation.
	Create(ctx context.Context, m *models.TargetMutation) error

	// Update stores the current status, attempts, and outcome of a mutation.
	Update(ctx context.Context, m *models.TargetMutation) error

	// ListPending returns mutations that never reached a terminal status,
	// oldest first.
	ListPending(ctx context.Context) ([]*models.TargetMutation, error)

	// ListForEntity returns the mutation history for one entity, newest first.
	ListForEntity(ctx context.Context, entity models.EntityRef) ([]*models.TargetMutation, error)
}

type mutationRepository struct {
	db *database.DB
}

// NewMutationRepository creates a new mutation repository.
func NewMutationRepository(db *database.DB) MutationRepository {
	return &mutationRepository{db: db}
}

func (r *mutationRepository) Create(ctx context.Context, m *models.TargetMutation) error {
	query := `
		INSERT INTO target_mutations
			(id, entity_key, old_value, new_value, fact_id, source_system, status, attempts, error, created_at, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		m.ID,
		m.Entity.String(),
		m.OldValue,
		m.NewValue,
		m.FactID,
		m.SourceSystem,
		m.Status,
		m.Attempts,
		nullIfEmpty(m.Error),
		m.CreatedAt,
		m.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mutation: %w", err)
	}
	return nil
}

func (r *mutationRepository) Update(ctx context.Context, m *models.TargetMutation) error {
	query := `
		UPDATE target_mutations
		SET status = $2, attempts = $3, error = $4, applied_at = $5
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, m.ID, m.Status, m.Attempts, nullIfEmpty(m.Error), m.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to update mutation: %w", err)
	}
	return nil
}

func (r *mutationRepository) ListPending(ctx context.Context) ([]*models.TargetMutation, error) {
	return r.list(ctx, `
		SELECT id, entity_key, old_value, new_value, fact_id, source_system, status, attempts, error, created_at, applied_at
		FROM target_mutations
		WHERE status = $1
		ORDER BY created_at`, models.MutationStatusPending)
}

func (r *mutationRepository) ListForEntity(ctx context.Context, entity models.EntityRef) ([]*models.TargetMutation, error) {
	return r.list(ctx, `
		SELECT id, entity_key, old_value, new_value, fact_id, source_system, status, attempts, error, created_at, applied_at
		FROM target_mutations
		WHERE entity_key = $1
		ORDER BY created_at DESC`, entity.String())
}

func (r *mutationRepository) list(ctx context.Context, query string, args ...any) ([]*models.TargetMutation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}
	defer rows.Close()

	var mutations []*models.TargetMutation
	for rows.Next() {
		m := &models.TargetMutation{}
		var entityKey string
		var errMsg *string
		if err := rows.Scan(
			&m.ID,
			&entityKey,
			&m.OldValue,
			&m.NewValue,
			&m.FactID,
			&m.SourceSystem,
			&m.Status,
			&m.Attempts,
			&errMsg,
			&m.CreatedAt,
			&m.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mutation: %w", err)
		}

		ref, err := models.ParseEntityRef(entityKey)
		if err != nil {
			return nil, fmt.Errorf("corrupt entity key %q: %w", entityKey, err)
		}
		m.Entity = ref
		if errMsg != nil {
			m.Error = *errMsg
		}
		mutations = append(mutations, m)
	}
	return mutations, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
