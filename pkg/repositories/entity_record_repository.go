// Package repositories provides PostgreSQL data access for pipeline state.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snowlink-io/snowlink-engine/pkg/apperrors"
	"github.com/snowlink-io/snowlink-engine/pkg/database"
	"github.com/snowlink-io/snowlink-engine/pkg/models"
)

// EntityRecordRepository defines data access for entity reconciliation state.
type EntityRecordRepository interface {
	// Get retrieves the record for an entity. Returns apperrors.ErrNotFound
	// when the entity has never been seen.
	Get(ctx context.Context, entity models.EntityRef) (*models.EntityRecord, error)

	// Save upserts a record keyed by the entity path.
	Save(ctx context.Context, record *models.EntityRecord) error

	// List retrieves every record, ordered by entity key for deterministic
	// artifact generation.
	List(ctx context.Context) ([]*models.EntityRecord, error)

	// ListNeedsReview retrieves records holding low-confidence facts gated
	// from mutation.
	ListNeedsReview(ctx context.Context) ([]*models.EntityRecord, error)
}

type entityRecordRepository struct {
	db *database.DB
}

// NewEntityRecordRepository creates a new entity record repository.
func NewEntityRecordRepository(db *database.DB) EntityRecordRepository {
	return &entityRecordRepository{db: db}
}

func (r *entityRecordRepository) Get(ctx context.Context, entity models.EntityRef) (*models.EntityRecord, error) {
	query := `
		SELECT state, current_fact, source_fingerprints, history, needs_review,
		       last_applied_value, last_applied_at, updated_at
		FROM entity_records
		WHERE entity_key = $1`

	record := models.NewEntityRecord(entity)
	var currentFact, fingerprints, history []byte
	err := r.db.QueryRow(ctx, query, entity.String()).Scan(
		&record.State,
		&currentFact,
		&fingerprints,
		&history,
		&record.NeedsReview,
		&record.LastAppliedValue,
		&record.LastAppliedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("entity record %s: %w", entity, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity record: %w", err)
	}

	if err := unmarshalRecordColumns(record, currentFact, fingerprints, history); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *entityRecordRepository) Save(ctx context.Context, record *models.EntityRecord) error {
	currentFact, fingerprints, history, err := marshalRecordColumns(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO entity_records
			(entity_key, state, current_fact, source_fingerprints, history,
			 needs_review, last_applied_value, last_applied_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entity_key) DO UPDATE SET
			state = EXCLUDED.state,
			current_fact = EXCLUDED.current_fact,
			source_fingerprints = EXCLUDED.source_fingerprints,
			history = EXCLUDED.history,
			needs_review = EXCLUDED.needs_review,
			last_applied_value = EXCLUDED.last_applied_value,
			last_applied_at = EXCLUDED.last_applied_at,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		record.Entity.String(),
		record.State,
		currentFact,
		fingerprints,
		history,
		record.NeedsReview,
		record.LastAppliedValue,
		record.LastAppliedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save entity record: %w", err)
	}
	return nil
}

func (r *entityRecordRepository) List(ctx context.Context) ([]*models.EntityRecord, error) {
	return r.list(ctx, `
		SELECT entity_key, state, current_fact, source_fingerprints, history,
		       needs_review, last_applied_value, last_applied_at, updated_at
		FROM entity_records
		ORDER BY entity_key`)
}

func (r *entityRecordRepository) ListNeedsReview(ctx context.Context) ([]*models.EntityRecord, error) {
	return r.list(ctx, `
		SELECT entity_key, state, current_fact, source_fingerprints, history,
		       needs_review, last_applied_value, last_applied_at, updated_at
		FROM entity_records
		WHERE needs_review
		ORDER BY entity_key`)
}

func (r *entityRecordRepository) list(ctx context.Context, query string) ([]*models.EntityRecord, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity records: %w", err)
	}
	defer rows.Close()

	var records []*models.EntityRecord
	for rows.Next() {
		var entityKey string
		record := &models.EntityRecord{}
		var currentFact, fingerprints, history []byte
		if err := rows.Scan(
			&entityKey,
			&record.State,
			&currentFact,
			&fingerprints,
			&history,
			&record.NeedsReview,
			&record.LastAppliedValue,
			&record.LastAppliedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity record: %w", err)
		}

		ref, err := models.ParseEntityRef(entityKey)
		if err != nil {
			return nil, fmt.Errorf("corrupt entity key %q: %w", entityKey, err)
		}
		record.Entity = ref

		if err := unmarshalRecordColumns(record, currentFact, fingerprints, history); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func marshalRecordColumns(record *models.EntityRecord) (currentFact, fingerprints, history []byte, err error) {
	if record.Current != nil {
		if currentFact, err = json.Marshal(record.Current); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal current fact: %w", err)
		}
	}
	if fingerprints, err = json.Marshal(record.SourceFingerprints); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal fingerprints: %w", err)
	}
	if record.History == nil {
		history = []byte("[]")
	} else if history, err = json.Marshal(record.History); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal history: %w", err)
	}
	return currentFact, fingerprints, history, nil
}

func unmarshalRecordColumns(record *models.EntityRecord, currentFact, fingerprints, history []byte) error {
	if len(currentFact) > 0 {
		record.Current = &models.SchemaFact{}
		if err := json.Unmarshal(currentFact, record.Current); err != nil {
			return fmt.Errorf("failed to unmarshal current fact: %w", err)
		}
	}
	if len(fingerprints) > 0 {
		if err := json.Unmarshal(fingerprints, &record.SourceFingerprints); err != nil {
			return fmt.Errorf("failed to unmarshal fingerprints: %w", err)
		}
	}
	if record.SourceFingerprints == nil {
		record.SourceFingerprints = make(map[string]string)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &record.History); err != nil {
			return fmt.Errorf("failed to unmarshal history: %w", err)
		}
	}
	return nil
}
