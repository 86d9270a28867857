package game

import (
	"fmt"
	"time"
)

// PricePair holds one probability per side, each in [0,1]
type PricePair struct {
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

// Observation is the outcome of one processing attempt for one game
type Observation struct {
	Game           Identity   `json:"game"`
	Success        bool       `json:"success"`
	Reason         string     `json:"reason,omitempty"`
	ScreenshotPath string     `json:"screenshot_path,omitempty"`
	HomePrice      *float64   `json:"home_price,omitempty"`
	AwayPrice      *float64   `json:"away_price,omitempty"`
	Low            *PricePair `json:"low,omitempty"`
	Final          bool       `json:"final"`
	CapturedAt     time.Time  `json:"captured_at"`
}

// NewObservation starts a failed-by-default result for g
func NewObservation(g Identity, capturedAt time.Time) *Observation {
	return &Observation{
		Game:       g,
		CapturedAt: capturedAt,
	}
}

// Fail records why processing stopped
func (o *Observation) Fail(err error) {
	o.Success = false
	if err != nil {
		o.Reason = err.Error()
	}
}

// Succeed marks the result usable. A screenshot is required.
func (o *Observation) Succeed(screenshotPath string) error {
	if screenshotPath == "" {
		o.Success = false
		o.Reason = "screenshot capture failed"
		return fmt.Errorf("%w: no screenshot for %s", ErrExtraction, o.Game.ID())
	}
	o.ScreenshotPath = screenshotPath
	o.Success = true
	o.Reason = ""
	return nil
}

// Validate enforces the success ⇒ screenshot invariant
func (o *Observation) Validate() error {
	if o.Success && o.ScreenshotPath == "" {
		return fmt.Errorf("observation %s marked successful without screenshot", o.Game.ID())
	}
	return o.Game.Validate()
}

// Status is a short label for summaries
func (o *Observation) Status() string {
	if o.Success {
		if o.Final {
			return "OK (final)"
		}
		return "OK"
	}
	if o.Reason == "" {
		return "failed"
	}
	return o.Reason
}
