package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fortuna/moneta/internal/store"
)

// ObservationRepository handles archived observation access
type ObservationRepository struct {
	db *store.Database
}

// NewObservationRepository creates a new observation repository
func NewObservationRepository(db *store.Database) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// Insert archives one observation and sets its ID
func (r *ObservationRepository) Insert(ctx context.Context, rec *store.ObservationRecord) error {
	query := `
		INSERT INTO observations (run_id, game_id, game_date, away_team, home_team,
			start_time, url, success, reason, screenshot_path,
			home_price, away_price, home_low, away_low, is_final, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING observation_id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		rec.RunID, rec.GameID, rec.GameDate, rec.AwayTeam, rec.HomeTeam,
		rec.StartTime, rec.URL, rec.Success, rec.Reason, rec.ScreenshotPath,
		rec.HomePrice, rec.AwayPrice, rec.HomeLow, rec.AwayLow, rec.IsFinal, rec.CapturedAt,
	).Scan(&rec.ObservationID)

	if err != nil {
		return fmt.Errorf("inserting observation: %w", err)
	}

	return nil
}

// GetByGame returns a game's observations in capture order
func (r *ObservationRepository) GetByGame(ctx context.Context, gameID string) ([]*store.ObservationRecord, error) {
	query := `
		SELECT observation_id, run_id, game_id, game_date::text, away_team, home_team,
			start_time, url, success, reason, screenshot_path,
			home_price, away_price, home_low, away_low, is_final, captured_at
		FROM observations
		WHERE game_id = $1
		ORDER BY captured_at
	`

	rows, err := r.db.DB().QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer rows.Close()

	return r.scanObservations(rows)
}

func (r *ObservationRepository) scanObservations(rows *sql.Rows) ([]*store.ObservationRecord, error) {
	var records []*store.ObservationRecord
	for rows.Next() {
		rec := &store.ObservationRecord{}
		err := rows.Scan(
			&rec.ObservationID, &rec.RunID, &rec.GameID, &rec.GameDate, &rec.AwayTeam, &rec.HomeTeam,
			&rec.StartTime, &rec.URL, &rec.Success, &rec.Reason, &rec.ScreenshotPath,
			&rec.HomePrice, &rec.AwayPrice, &rec.HomeLow, &rec.AwayLow, &rec.IsFinal, &rec.CapturedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning observation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
