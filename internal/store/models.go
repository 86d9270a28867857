package store

import (
	"database/sql"
	"time"

	"github.com/fortuna/moneta/internal/game"
)

// Run is one invocation of the capture job
type Run struct {
	RunID      string       `json:"run_id" db:"run_id"`
	StartedAt  time.Time    `json:"started_at" db:"started_at"`
	FinishedAt sql.NullTime `json:"finished_at,omitempty" db:"finished_at"`
	GameDate   string       `json:"game_date" db:"game_date"`
	Attempted  int          `json:"attempted" db:"attempted"`
	Succeeded  int          `json:"succeeded" db:"succeeded"`
	Persisted  int          `json:"persisted" db:"persisted"`
	DryRun     bool         `json:"dry_run" db:"dry_run"`
}

// ObservationRecord is an archived game observation
type ObservationRecord struct {
	ObservationID  int64           `json:"observation_id" db:"observation_id"`
	RunID          string          `json:"run_id" db:"run_id"`
	GameID         string          `json:"game_id" db:"game_id"`
	GameDate       string          `json:"game_date" db:"game_date"`
	AwayTeam       string          `json:"away_team" db:"away_team"`
	HomeTeam       string          `json:"home_team" db:"home_team"`
	StartTime      sql.NullString  `json:"start_time,omitempty" db:"start_time"`
	URL            sql.NullString  `json:"url,omitempty" db:"url"`
	Success        bool            `json:"success" db:"success"`
	Reason         sql.NullString  `json:"reason,omitempty" db:"reason"`
	ScreenshotPath sql.NullString  `json:"screenshot_path,omitempty" db:"screenshot_path"`
	HomePrice      sql.NullFloat64 `json:"home_price,omitempty" db:"home_price"`
	AwayPrice      sql.NullFloat64 `json:"away_price,omitempty" db:"away_price"`
	HomeLow        sql.NullFloat64 `json:"home_low,omitempty" db:"home_low"`
	AwayLow        sql.NullFloat64 `json:"away_low,omitempty" db:"away_low"`
	IsFinal        bool            `json:"is_final" db:"is_final"`
	CapturedAt     time.Time       `json:"captured_at" db:"captured_at"`
}

// NewObservationRecord flattens an observation into archive columns
func NewObservationRecord(runID string, obs *game.Observation) *ObservationRecord {
	rec := &ObservationRecord{
		RunID:          runID,
		GameID:         obs.Game.ID(),
		GameDate:       obs.Game.Date,
		AwayTeam:       obs.Game.Away,
		HomeTeam:       obs.Game.Home,
		StartTime:      nullString(obs.Game.StartTime),
		URL:            nullString(obs.Game.URL),
		Success:        obs.Success,
		Reason:         nullString(obs.Reason),
		ScreenshotPath: nullString(obs.ScreenshotPath),
		HomePrice:      nullFloat(obs.HomePrice),
		AwayPrice:      nullFloat(obs.AwayPrice),
		IsFinal:        obs.Final,
		CapturedAt:     obs.CapturedAt,
	}
	if obs.Low != nil {
		rec.HomeLow = sql.NullFloat64{Float64: obs.Low.Home, Valid: true}
		rec.AwayLow = sql.NullFloat64{Float64: obs.Low.Away, Valid: true}
	}
	return rec
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
