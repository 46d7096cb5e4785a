package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/snowlink-io/snowlink-engine/pkg/database"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// BatchRepository persists batch summaries for operational review.
type BatchRepository interface {
	// Save inserts one finished batch summary.
	Save(ctx context.Context, summary *models.BatchSummary) error

	// ListRecent returns the most recent summaries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.BatchSummary, error)
}

type batchRepository struct {
	db *database.DB
}

// NewBatchRepository creates a new batch summary repository.
func NewBatchRepository(db *database.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Save(ctx context.Context, summary *models.BatchSummary) error {
	conflicts, err := json.Marshal(summary.Conflicts)
	if err != nil {
		return fmt.Errorf("failed to marshal conflicts: %w", err)
	}
	failures, err := json.Marshal(summary.Failures)
	if err != nil {
		return fmt.Errorf("failed to marshal failures: %w", err)
	}
	needsAttention, err := json.Marshal(summary.NeedsAttention)
	if err != nil {
		return fmt.Errorf("failed to marshal needs attention: %w", err)
	}

	query := `
		INSERT INTO batch_summaries
			(id, documents_processed, documents_skipped, entities_updated,
			 conflicts, failures, needs_attention, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		summary.ID,
		summary.DocumentsProcessed,
		summary.DocumentsSkipped,
		summary.EntitiesUpdated,
		conflicts,
		failures,
		needsAttention,
		summary.StartedAt,
		summary.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save batch summary: %w", err)
	}
	return nil
}

func (r *batchRepository) ListRecent(ctx context.Context, limit int) ([]*models.BatchSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, documents_processed, documents_skipped, entities_updated,
		       conflicts, failures, needs_attention, started_at, finished_at
		FROM batch_summaries
		ORDER BY finished_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.BatchSummary
	for rows.Next() {
		s := &models.BatchSummary{}
		var conflicts, failures, needsAttention []byte
		if err := rows.Scan(
			&s.ID,
			&s.DocumentsProcessed,
			&s.DocumentsSkipped,
			&s.EntitiesUpdated,
			&conflicts,
			&failures,
			&needsAttention,
			&s.StartedAt,
			&s.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch summary: %w", err)
		}
		if err := json.Unmarshal(conflicts, &s.Conflicts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conflicts: %w", err)
		}
		if err := json.Unmarshal(failures, &s.Failures); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failures: %w", err)
		}
		if err := json.Unmarshal(needsAttention, &s.NeedsAttention); err != nil {
			return nil, fmt.Errorf("failed to unmarshal needs attention: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
