package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snowlink-io/snowlink-engine/pkg/database"
)

// CheckpointRepository persists per-source sync positions. A checkpoint only
// advances after every mutation from its batch reached a terminal status, so
// a crash replays documents rather than losing them.
type CheckpointRepository interface {
	// Get returns the checkpoint for a source. Zero time when none exists.
	Get(ctx context.Context, sourceSystem string) (time.Time, error)

	// Advance moves the checkpoint forward. Never moves it backward.
	Advance(ctx context.Context, sourceSystem string, position time.Time) error
}

type checkpointRepository struct {
	db *database.DB
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(db *database.DB) CheckpointRepository {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) Get(ctx context.Context, sourceSystem string) (time.Time, error) {
	var position string
	err := r.db.QueryRow(ctx,
		`SELECT position FROM source_checkpoints WHERE source_system = $1`,
		sourceSystem).Scan(&position)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, position)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt checkpoint %q for %s: %w", position, sourceSystem, err)
	}
	return t, nil
}

func (r *checkpointRepository) Advance(ctx context.Context, sourceSystem string, position time.Time) error {
	current, err := r.Get(ctx, sourceSystem)
	if err != nil {
		return err
	}
	if !position.After(current) {
		return nil
	}

	query := `
		INSERT INTO source_checkpoints (source_system, position, advanced_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (source_system) DO UPDATE SET
			position = EXCLUDED.position,
			advanced_at = EXCLUDED.advanced_at`

	if _, err := r.db.Exec(ctx, query, sourceSystem, position.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}
	return nil
}
