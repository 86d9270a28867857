package game

import "time"

// RunReport summarises one capture run
type RunReport struct {
	RunID         string         `json:"run_id"`
	Date          string         `json:"date"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	DryRun        bool           `json:"dry_run"`
	Attempted     int            `json:"attempted"`
	Succeeded     int            `json:"succeeded"`
	Persisted     int            `json:"persisted"`
	SkippedFinal  int            `json:"skipped_final"`
	Unrecoverable int            `json:"unrecoverable"`
	Results       []*Observation `json:"results"`
}

// Failed reports whether every attempted game failed.
// A run that attempted nothing has not failed.
func (r *RunReport) Failed() bool {
	return r.Attempted > 0 && r.Succeeded == 0
}

// Add records one processed game
func (r *RunReport) Add(obs *Observation) {
	r.Results = append(r.Results, obs)
	r.Attempted++
	if obs.Success {
		r.Succeeded++
	}
}
