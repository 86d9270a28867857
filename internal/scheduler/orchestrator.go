package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/fortuna/moneta/internal/ingest/polymarket"
	"github.com/fortuna/moneta/internal/pricing"
	"github.com/fortuna/moneta/internal/reconciliation"
	"github.com/fortuna/moneta/internal/workbook"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Observer drives the games page. One observer serves a whole run and is
// used by one game at a time.
type Observer interface {
	ListGames(ctx context.Context) ([]polymarket.RawGame, error)
	OpenFromList(ctx context.Context, index int) (string, error)
	OpenURL(ctx context.Context, url string) error
	ClickText(ctx context.Context, text string) error
	WaitForChart(ctx context.Context) error
	ScreenshotChart(ctx context.Context, path string) error
	HTML(ctx context.Context) (string, error)
}

// HistoryFetcher returns the away side's price series for a market token
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, token string) ([]pricing.Sample, error)
}

// Ledger is the persisted per-date game state
type Ledger interface {
	Regions(date string) (map[string]workbook.RegionState, error)
	AppendEntry(ctx context.Context, obs *game.Observation) error
	AppendEntries(ctx context.Context, results []*game.Observation) (int, error)
}

// Sink receives observations and run summaries on a best-effort basis
type Sink interface {
	PublishObservation(ctx context.Context, runID string, obs *game.Observation) error
	PublishRun(ctx context.Context, report *game.RunReport) error
}

// Config holds run configuration
type Config struct {
	Location      *time.Location
	Window        time.Duration // price-history lookback, default 6h
	ScreenshotDir string
	RequestDelay  time.Duration // between consecutive games, default 2s
	MaxGames      int           // 0 processes every game
	DryRun        bool
	BatchCommit   bool // one workbook commit at the end instead of one per game
	TimePeriod    string
}

// DefaultConfig returns default run configuration
func DefaultConfig() *Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Config{
		Location:      loc,
		Window:        6 * time.Hour,
		ScreenshotDir: "screenshots",
		RequestDelay:  2 * time.Second,
		TimePeriod:    "6H",
	}
}

// Orchestrator runs one capture pass: discover, partition, process,
// persist, report
type Orchestrator struct {
	observer   Observer
	history    HistoryFetcher
	ledger     Ledger
	sinks      []Sink
	engine     *reconciliation.Engine
	retry      RetryPolicy
	interrupts *Interrupts
	wait       func(ctx context.Context, d time.Duration) bool
	config     *Config
	logger     *logrus.Logger
	now        func() time.Time
}

// NewOrchestrator creates a new run orchestrator. history may be nil.
func NewOrchestrator(observer Observer, history HistoryFetcher, ledger Ledger, config *Config, logger *logrus.Logger) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.TimePeriod == "" {
		config.TimePeriod = "6H"
	}

	return &Orchestrator{
		observer: observer,
		history:  history,
		ledger:   ledger,
		engine:   reconciliation.NewEngine(logger),
		retry:    DefaultRetryPolicy(logger),
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// WithSinks adds optional observation sinks
func (o *Orchestrator) WithSinks(sinks ...Sink) *Orchestrator {
	o.sinks = append(o.sinks, sinks...)
	return o
}

// WithRetryPolicy replaces the observer retry policy
func (o *Orchestrator) WithRetryPolicy(p RetryPolicy) *Orchestrator {
	o.retry = p
	return o
}

// WithInterrupts lets a keyboard interrupt end rate-limit waits early
func (o *Orchestrator) WithInterrupts(in *Interrupts) *Orchestrator {
	o.interrupts = in
	return o
}

// WithClock replaces the wall clock
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run performs one pass. Per-game failures are recorded in the report;
// the returned error is reserved for failures that stop the whole run.
func (o *Orchestrator) Run(ctx context.Context) (*game.RunReport, error) {
	started := o.now().In(o.config.Location)
	report := &game.RunReport{
		RunID:     uuid.NewString(),
		Date:      started.Format(game.DateLayout),
		StartedAt: started,
		DryRun:    o.config.DryRun,
	}
	logger := o.logger.WithField("run_id", report.RunID)
	logger.WithFields(logrus.Fields{
		"date":    report.Date,
		"dry_run": o.config.DryRun,
	}).Infof("Starting run at %s", started.Format("2006-01-02 15:04:05 MST"))

	// Discover
	live := o.discoverLive(ctx, report.Date)
	persisted := o.discoverPersisted(report.Date)

	// Partition
	plan := o.engine.Plan(live, persisted)
	plan = capPlan(plan, o.config.MaxGames)
	report.SkippedFinal = len(plan.SkippedFinal)
	report.Unrecoverable = len(plan.Unrecoverable)

	if plan.Total() == 0 {
		logger.Warn("⚠️  No games to process")
	} else {
		logger.WithFields(logrus.Fields{
			"live":   len(plan.Live),
			"by_url": len(plan.ByURL),
		}).Infof("Processing %d games", plan.Total())
	}

	// Process and persist
	for i, lg := range plan.Live {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			o.pause(ctx)
		}
		logger.Infof("--- Live game %d/%d: %s ---", i+1, len(plan.Live), lg.Game)
		index := lg.Index
		obs := o.processGame(ctx, lg.Game, func(ctx context.Context) (string, error) {
			return o.observer.OpenFromList(ctx, index)
		})
		o.record(ctx, report, obs)
	}

	for i, g := range plan.ByURL {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			o.pause(ctx)
		}
		logger.Infof("--- By-URL game %d/%d: %s ---", i+1, len(plan.ByURL), g)
		url := g.URL
		obs := o.processGame(ctx, g, func(ctx context.Context) (string, error) {
			return url, o.observer.OpenURL(ctx, url)
		})
		o.record(ctx, report, obs)
	}

	if o.config.BatchCommit && !o.config.DryRun {
		appended, err := o.ledger.AppendEntries(context.WithoutCancel(ctx), report.Results)
		if err != nil {
			logger.WithError(err).Error("❌ Failed to persist results")
		}
		report.Persisted += appended
	}

	// Report
	report.FinishedAt = o.now().In(o.config.Location)
	o.publishRun(ctx, report)

	logger.WithFields(logrus.Fields{
		"attempted": report.Attempted,
		"succeeded": report.Succeeded,
		"persisted": report.Persisted,
	}).Info("Run complete")

	return report, nil
}

func (o *Orchestrator) discoverLive(ctx context.Context, date string) []reconciliation.LiveGame {
	var rows []polymarket.RawGame
	err := o.retry.Do(ctx, "list games", func(ctx context.Context) error {
		var err error
		rows, err = o.observer.ListGames(ctx)
		return err
	})
	if err != nil {
		o.logger.WithError(err).Error("❌ Failed to load games list")
		return nil
	}

	live := make([]reconciliation.LiveGame, 0, len(rows))
	seen := make(map[string]bool)
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			o.logger.WithError(err).Warn("⚠️  Skipping invalid game row")
			continue
		}
		g := row.Identity(date)
		if seen[g.ID()] {
			continue
		}
		seen[g.ID()] = true
		live = append(live, reconciliation.LiveGame{Game: g, Index: row.Index})
		o.logger.WithField("game_id", g.ID()).Infof("✓ Found game: %s", g)
	}
	return live
}

func (o *Orchestrator) discoverPersisted(date string) map[string]workbook.RegionState {
	persisted, err := o.ledger.Regions(date)
	if err != nil {
		o.logger.WithError(err).Warn("⚠️  Could not read persisted games, treating sheet as empty")
		return map[string]workbook.RegionState{}
	}
	return persisted
}

// capPlan keeps at most max games, live games first
func capPlan(plan reconciliation.Plan, max int) reconciliation.Plan {
	if max <= 0 || plan.Total() <= max {
		return plan
	}
	if len(plan.Live) >= max {
		plan.Live = plan.Live[:max]
		plan.ByURL = nil
		return plan
	}
	plan.ByURL = plan.ByURL[:max-len(plan.Live)]
	return plan
}

func (o *Orchestrator) pause(ctx context.Context) {
	o.logger.Debugf("Waiting %v before next game...", o.config.RequestDelay)
	wait := o.interrupts.Pause
	if o.wait != nil {
		wait = o.wait
	}
	if wait(ctx, o.config.RequestDelay) {
		o.logger.Info("Interrupted wait, continuing")
	}
}

// processGame drives the observer through one game. Each failing step sets
// the reason and skips the rest; the observation is always returned.
func (o *Orchestrator) processGame(ctx context.Context, g game.Identity, open func(context.Context) (string, error)) *game.Observation {
	capturedAt := o.now().In(o.config.Location)
	obs := game.NewObservation(g, capturedAt)
	logger := o.logger.WithField("game_id", g.ID())

	fail := func(label string, err error) *game.Observation {
		obs.Fail(fmt.Errorf("%s: %w", label, err))
		logger.WithError(err).Warnf("⚠️  %s", label)
		return obs
	}

	var url string
	err := o.retry.Do(ctx, "open game", func(ctx context.Context) error {
		var err error
		url, err = open(ctx)
		return err
	})
	if err != nil {
		return fail("Failed to open game", err)
	}
	obs.Game = obs.Game.WithURL(url)

	steps := []struct {
		label string
		run   func(context.Context) error
	}{
		{"No Moneyline market available", func(ctx context.Context) error { return o.observer.ClickText(ctx, "Moneyline") }},
		{"Failed to navigate to Graph", func(ctx context.Context) error { return o.observer.ClickText(ctx, "Graph") }},
		{"Failed to select " + o.config.TimePeriod + " time period", func(ctx context.Context) error {
			return o.observer.ClickText(ctx, o.config.TimePeriod)
		}},
		{"Chart failed to render", o.observer.WaitForChart},
	}
	for _, step := range steps {
		if err := o.retry.Do(ctx, step.label, step.run); err != nil {
			return fail(step.label, err)
		}
	}

	var html string
	err = o.retry.Do(ctx, "read page", func(ctx context.Context) error {
		var err error
		html, err = o.observer.HTML(ctx)
		return err
	})
	if err != nil {
		return fail("Failed to read game page", err)
	}
	doc, err := polymarket.ParseHTML(html)
	if err != nil {
		return fail("Failed to parse game page", fmt.Errorf("%w: %v", game.ErrExtraction, err))
	}

	obs.HomePrice, obs.AwayPrice = polymarket.ParseMoneylinePrices(doc, obs.Game)
	if obs.HomePrice == nil || obs.AwayPrice == nil {
		logger.Warn("⚠️  Could not extract both current prices")
	}
	obs.Final = polymarket.IsFinal(doc)

	obs.Low = o.lowPrices(ctx, html, capturedAt, logger)

	path := polymarket.ScreenshotPath(o.config.ScreenshotDir, obs.Game, capturedAt)
	if err := o.retry.Do(ctx, "screenshot", func(ctx context.Context) error {
		return o.observer.ScreenshotChart(ctx, path)
	}); err != nil {
		return fail("Screenshot capture failed", err)
	}
	if err := obs.Succeed(path); err != nil {
		return fail("Screenshot capture failed", err)
	}

	logger.WithField("final", obs.Final).Infof("✓ Captured %s", path)
	return obs
}

// lowPrices derives the window lows from the market's price history.
// Any failure leaves them absent.
func (o *Orchestrator) lowPrices(ctx context.Context, html string, capturedAt time.Time, logger *logrus.Entry) *game.PricePair {
	if o.history == nil {
		return nil
	}
	token, ok := polymarket.ParseMarketToken(html)
	if !ok {
		logger.Warn("⚠️  No market token on page, skipping price history")
		return nil
	}

	samples, err := o.history.FetchHistory(ctx, token)
	if err != nil {
		logger.WithError(err).Warn("⚠️  Price history unavailable")
		return nil
	}

	homeLow, awayLow, ok := pricing.DeriveLowPrices(samples, capturedAt.Add(-o.config.Window))
	if !ok {
		return nil
	}
	return &game.PricePair{Home: homeLow, Away: awayLow}
}

// record adds obs to the report, persists it unless batching or dry-run,
// and hands it to the sinks
func (o *Orchestrator) record(ctx context.Context, report *game.RunReport, obs *game.Observation) {
	report.Add(obs)

	// finish writes even if the run is being interrupted
	persistCtx := context.WithoutCancel(ctx)

	if obs.Success && !o.config.DryRun && !o.config.BatchCommit {
		if err := o.ledger.AppendEntry(persistCtx, obs); err != nil {
			o.logger.WithError(err).WithField("game_id", obs.Game.ID()).Error("❌ Failed to persist result")
		} else {
			report.Persisted++
		}
	}

	for _, sink := range o.sinks {
		if err := sink.PublishObservation(persistCtx, report.RunID, obs); err != nil {
			o.logger.WithError(err).WithField("game_id", obs.Game.ID()).Warn("⚠️  Sink rejected observation")
		}
	}
}

func (o *Orchestrator) publishRun(ctx context.Context, report *game.RunReport) {
	ctx = context.WithoutCancel(ctx)
	for _, sink := range o.sinks {
		if err := sink.PublishRun(ctx, report); err != nil {
			o.logger.WithError(err).Warn("⚠️  Sink rejected run summary")
		}
	}
}
