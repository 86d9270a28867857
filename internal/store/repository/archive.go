package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/fortuna/moneta/internal/game"
	"github.com/fortuna/moneta/internal/store"
)

// Archive copies every observation and run summary into Postgres
type Archive struct {
	runs         *RunRepository
	observations *ObservationRepository

	mu      sync.Mutex
	started map[string]bool
}

// NewArchive creates an archive sink over db
func NewArchive(db *store.Database) *Archive {
	return &Archive{
		runs:         NewRunRepository(db),
		observations: NewObservationRepository(db),
		started:      make(map[string]bool),
	}
}

// PublishObservation archives obs, creating the run row on first use
func (a *Archive) PublishObservation(ctx context.Context, runID string, obs *game.Observation) error {
	if err := a.ensureRun(ctx, runID, obs); err != nil {
		return err
	}
	return a.observations.Insert(ctx, store.NewObservationRecord(runID, obs))
}

// PublishRun stores the run's final counters
func (a *Archive) PublishRun(ctx context.Context, report *game.RunReport) error {
	return a.runs.Finish(ctx, NewRunRecord(report))
}

func (a *Archive) ensureRun(ctx context.Context, runID string, obs *game.Observation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started[runID] {
		return nil
	}
	run := &store.Run{
		RunID:     runID,
		StartedAt: obs.CapturedAt,
		GameDate:  obs.Game.Date,
	}
	if err := a.runs.Start(ctx, run); err != nil {
		return fmt.Errorf("archiving run %s: %w", runID, err)
	}
	a.started[runID] = true
	return nil
}

// NewRunRecord converts a finished run report to its archive row
func NewRunRecord(report *game.RunReport) *store.Run {
	run := &store.Run{
		RunID:     report.RunID,
		StartedAt: report.StartedAt,
		GameDate:  report.Date,
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Persisted: report.Persisted,
		DryRun:    report.DryRun,
	}
	if !report.FinishedAt.IsZero() {
		run.FinishedAt = sql.NullTime{Time: report.FinishedAt, Valid: true}
	}
	return run
}
