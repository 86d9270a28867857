package repository

import (
	"context"
	"fmt"

	"github.com/fortuna/moneta/internal/store"
)

// RunRepository records each capture run
type RunRepository struct {
	db *store.Database
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *store.Database) *RunRepository {
	return &RunRepository{db: db}
}

// Start inserts the run row before any observation references it
func (r *RunRepository) Start(ctx context.Context, run *store.Run) error {
	query := `
		INSERT INTO runs (run_id, started_at, game_date, dry_run)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING
	`

	if _, err := r.db.DB().ExecContext(ctx, query, run.RunID, run.StartedAt, run.GameDate, run.DryRun); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Finish stores the run's counters, inserting the row if no observation
// created it
func (r *RunRepository) Finish(ctx context.Context, run *store.Run) error {
	query := `
		INSERT INTO runs (run_id, started_at, finished_at, game_date, attempted, succeeded, persisted, dry_run)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			attempted = EXCLUDED.attempted,
			succeeded = EXCLUDED.succeeded,
			persisted = EXCLUDED.persisted
	`

	_, err := r.db.DB().ExecContext(ctx, query,
		run.RunID, run.StartedAt, run.FinishedAt, run.GameDate,
		run.Attempted, run.Succeeded, run.Persisted, run.DryRun,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}
	return nil
}
