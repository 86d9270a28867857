package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/fortuna/moneta/internal/ingest/polymarket"
	"github.com/fortuna/moneta/internal/pricing"
	"github.com/fortuna/moneta/internal/reconciliation"
	"github.com/fortuna/moneta/internal/workbook"
	"github.com/sirupsen/logrus"
)

const testDate = "2025-12-09"

var testNow = time.Date(2025, 12, 9, 19, 30, 0, 0, time.UTC)

const gamePageHTML = `<html><body>
<div><button>SAC 40¢</button><button>LAL 61¢</button></div>
<script>{"clobTokenIds":"[\"7132104567\",\"5213\"]"}</script>
</body></html>`

const finalPageHTML = `<html><body>
<span>Final</span>
<div><button>SAC 12¢</button><button>LAL 89¢</button></div>
</body></html>`

type fakeObserver struct {
	mu          sync.Mutex
	rows        []polymarket.RawGame
	listErr     error
	html        string
	clickErr    map[string]error
	shotErr     error
	openedIndex []int
	openedURLs  []string
	shots       []string
	events      []string
}

func (f *fakeObserver) event(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeObserver) ListGames(ctx context.Context) ([]polymarket.RawGame, error) {
	return f.rows, f.listErr
}

func (f *fakeObserver) OpenFromList(ctx context.Context, index int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openedIndex = append(f.openedIndex, index)
	f.events = append(f.events, fmt.Sprintf("list:%d", index))
	return "https://polymarket.com/event/game-" + string(rune('a'+index)), nil
}

func (f *fakeObserver) OpenURL(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openedURLs = append(f.openedURLs, url)
	f.events = append(f.events, "url:"+url)
	return nil
}

func (f *fakeObserver) ClickText(ctx context.Context, text string) error {
	return f.clickErr[text]
}

func (f *fakeObserver) WaitForChart(ctx context.Context) error { return nil }

func (f *fakeObserver) ScreenshotChart(ctx context.Context, path string) error {
	if f.shotErr != nil {
		return f.shotErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots = append(f.shots, path)
	return nil
}

func (f *fakeObserver) HTML(ctx context.Context) (string, error) {
	if f.html == "" {
		return gamePageHTML, nil
	}
	return f.html, nil
}

type fakeHistory struct {
	samples []pricing.Sample
	err     error
	tokens  []string
}

func (f *fakeHistory) FetchHistory(ctx context.Context, token string) ([]pricing.Sample, error) {
	f.tokens = append(f.tokens, token)
	return f.samples, f.err
}

type fakeLedger struct {
	regions    map[string]workbook.RegionState
	regionsErr error
	appended   []*game.Observation
	batches    int
}

func (f *fakeLedger) Regions(date string) (map[string]workbook.RegionState, error) {
	if f.regionsErr != nil {
		return nil, f.regionsErr
	}
	if f.regions == nil {
		return map[string]workbook.RegionState{}, nil
	}
	return f.regions, nil
}

func (f *fakeLedger) AppendEntry(ctx context.Context, obs *game.Observation) error {
	f.appended = append(f.appended, obs)
	return nil
}

func (f *fakeLedger) AppendEntries(ctx context.Context, results []*game.Observation) (int, error) {
	f.batches++
	n := 0
	for _, obs := range results {
		if obs.Success {
			f.appended = append(f.appended, obs)
			n++
		}
	}
	return n, nil
}

type fakeSink struct {
	observations []string
	runs         []*game.RunReport
}

func (f *fakeSink) PublishObservation(ctx context.Context, runID string, obs *game.Observation) error {
	f.observations = append(f.observations, obs.Game.ID())
	return nil
}

func (f *fakeSink) PublishRun(ctx context.Context, report *game.RunReport) error {
	f.runs = append(f.runs, report)
	return errors.New("sink offline")
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func row(index int, away, home string) polymarket.RawGame {
	return polymarket.RawGame{Index: index, Away: away, Home: home, StartTime: "7:30 PM"}
}

func persistedRegion(col int, away, home, url string, final bool) workbook.RegionState {
	g := game.Identity{Date: testDate, Away: away, Home: home, URL: url}
	return workbook.RegionState{Column: col, Game: g, URL: url, IsFinal: final}
}

func newTestOrchestrator(obs *fakeObserver, hist HistoryFetcher, ledger *fakeLedger, mutate func(*Config)) *Orchestrator {
	cfg := &Config{
		Location:      time.UTC,
		Window:        6 * time.Hour,
		ScreenshotDir: "shots",
		TimePeriod:    "6H",
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewOrchestrator(obs, hist, ledger, cfg, quietLogger()).
		WithRetryPolicy(RetryPolicy{MaxAttempts: 1}).
		WithClock(func() time.Time { return testNow })
}

func TestRunWithNoGames(t *testing.T) {
	ledger := &fakeLedger{}
	sink := &fakeSink{}
	o := newTestOrchestrator(&fakeObserver{}, nil, ledger, nil).WithSinks(sink)

	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Attempted != 0 || report.Failed() {
		t.Errorf("report = %+v, want nothing attempted and not failed", report)
	}
	if len(ledger.appended) != 0 {
		t.Errorf("appended %d entries, want 0", len(ledger.appended))
	}
	if len(sink.runs) != 1 {
		t.Errorf("PublishRun called %d times, want 1", len(sink.runs))
	}
	if report.RunID == "" || report.Date != testDate {
		t.Errorf("RunID = %q, Date = %q", report.RunID, report.Date)
	}
}

func TestRunProcessesLiveAndPersistedGames(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL")}}
	history := &fakeHistory{samples: []pricing.Sample{
		{Time: testNow.Add(-1 * time.Hour), Price: 0.40},
		{Time: testNow.Add(-2 * time.Hour), Price: 0.35},
		{Time: testNow.Add(-3 * time.Hour), Price: 0.50},
		{Time: testNow.Add(-10 * time.Hour), Price: 0.05},
	}}
	nykBos := persistedRegion(4, "NYK", "BOS", "https://polymarket.com/event/nyk-bos", false)
	ledger := &fakeLedger{regions: map[string]workbook.RegionState{
		nykBos.Game.ID(): nykBos,
		game.MakeID(testDate, "MIA", "ORL"): persistedRegion(7, "MIA", "ORL", "https://polymarket.com/event/mia-orl", true),
		game.MakeID(testDate, "DEN", "PHX"): persistedRegion(10, "DEN", "PHX", "", false),
	}}
	sink := &fakeSink{}

	o := newTestOrchestrator(observer, history, ledger, nil).WithSinks(sink)
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Attempted != 2 || report.Succeeded != 2 || report.Persisted != 2 {
		t.Errorf("attempted/succeeded/persisted = %d/%d/%d, want 2/2/2",
			report.Attempted, report.Succeeded, report.Persisted)
	}
	if report.SkippedFinal != 1 || report.Unrecoverable != 1 {
		t.Errorf("skipped final/unrecoverable = %d/%d, want 1/1", report.SkippedFinal, report.Unrecoverable)
	}
	if len(observer.openedIndex) != 1 || observer.openedIndex[0] != 0 {
		t.Errorf("opened from list = %v, want [0]", observer.openedIndex)
	}
	if len(observer.openedURLs) != 1 || observer.openedURLs[0] != nykBos.URL {
		t.Errorf("opened URLs = %v, want [%s]", observer.openedURLs, nykBos.URL)
	}

	live := report.Results[0]
	if live.Game.ID() != game.MakeID(testDate, "SAC", "LAL") {
		t.Fatalf("first result = %s, want the live game", live.Game.ID())
	}
	if live.Game.URL != "https://polymarket.com/event/game-a" {
		t.Errorf("live game URL = %q, want the opened page", live.Game.URL)
	}
	if live.AwayPrice == nil || *live.AwayPrice != 0.40 || live.HomePrice == nil || *live.HomePrice != 0.61 {
		t.Errorf("prices = %v/%v, want 0.40/0.61", live.AwayPrice, live.HomePrice)
	}
	if live.Low == nil || live.Low.Away != 0.35 || live.Low.Home != 0.5 {
		t.Errorf("Low = %+v, want away 0.35 home 0.5", live.Low)
	}
	if !strings.HasSuffix(live.ScreenshotPath, "LAL_SAC_20251209_193000.png") {
		t.Errorf("ScreenshotPath = %q", live.ScreenshotPath)
	}
	if len(history.tokens) != 2 || history.tokens[0] != "7132104567" {
		t.Errorf("history tokens = %v", history.tokens)
	}

	byURL := report.Results[1]
	if byURL.AwayPrice != nil || byURL.HomePrice != nil {
		t.Errorf("by-URL prices = %v/%v, want absent for teams not on the page", byURL.AwayPrice, byURL.HomePrice)
	}

	if len(sink.observations) != 2 || len(sink.runs) != 1 {
		t.Errorf("sink saw %d observations and %d runs, want 2 and 1", len(sink.observations), len(sink.runs))
	}
}

func TestRunMarksFinalGames(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL")}, html: finalPageHTML}
	ledger := &fakeLedger{}

	report, err := newTestOrchestrator(observer, &fakeHistory{}, ledger, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	obs := report.Results[0]
	if !obs.Success || !obs.Final {
		t.Errorf("Success/Final = %v/%v, want true/true", obs.Success, obs.Final)
	}
	if obs.Low != nil {
		t.Errorf("Low = %+v, want absent without a market token", obs.Low)
	}
}

func TestRunDryRun(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL")}}
	ledger := &fakeLedger{}

	o := newTestOrchestrator(observer, nil, ledger, func(c *Config) { c.DryRun = true })
	report, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Succeeded != 1 || report.Persisted != 0 || !report.DryRun {
		t.Errorf("report = %+v, want one success, nothing persisted", report)
	}
	if len(ledger.appended) != 0 {
		t.Errorf("dry run appended %d entries", len(ledger.appended))
	}
}

func TestRunMaxGames(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{
		row(0, "SAC", "LAL"), row(1, "NYK", "BOS"), row(2, "MIA", "ORL"),
	}}
	ledger := &fakeLedger{}

	report, err := newTestOrchestrator(observer, nil, ledger, func(c *Config) { c.MaxGames = 2 }).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Attempted != 2 {
		t.Errorf("Attempted = %d, want 2", report.Attempted)
	}
}

func TestRunStepFailure(t *testing.T) {
	tests := []struct {
		name     string
		observer *fakeObserver
		reason   string
	}{
		{
			name: "graph tab missing",
			observer: &fakeObserver{
				rows:     []polymarket.RawGame{row(0, "SAC", "LAL")},
				clickErr: map[string]error{"Graph": game.ErrExtraction},
			},
			reason: "Graph",
		},
		{
			name: "screenshot fails",
			observer: &fakeObserver{
				rows:    []polymarket.RawGame{row(0, "SAC", "LAL")},
				shotErr: game.ErrNavigationTimeout,
			},
			reason: "Screenshot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{}
			sink := &fakeSink{}
			report, err := newTestOrchestrator(tt.observer, nil, ledger, nil).WithSinks(sink).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !report.Failed() {
				t.Error("Failed() = false, want true")
			}
			obs := report.Results[0]
			if obs.Success || !strings.Contains(obs.Reason, tt.reason) {
				t.Errorf("Success = %v, Reason = %q, want failure mentioning %q", obs.Success, obs.Reason, tt.reason)
			}
			if len(ledger.appended) != 0 {
				t.Error("failed observation was persisted")
			}
			if len(sink.observations) != 1 {
				t.Errorf("sink saw %d observations, want 1", len(sink.observations))
			}
		})
	}
}

func TestRunBatchCommit(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL"), row(1, "NYK", "BOS")}}
	ledger := &fakeLedger{}

	report, err := newTestOrchestrator(observer, nil, ledger, func(c *Config) { c.BatchCommit = true }).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ledger.batches != 1 || report.Persisted != 2 {
		t.Errorf("batches = %d, persisted = %d, want 1 and 2", ledger.batches, report.Persisted)
	}
}

func TestRunSurvivesDiscoveryFailures(t *testing.T) {
	observer := &fakeObserver{listErr: game.ErrNavigationTimeout}
	region := persistedRegion(1, "NYK", "BOS", "https://polymarket.com/event/nyk-bos", false)
	ledger := &fakeLedger{regions: map[string]workbook.RegionState{region.Game.ID(): region}}

	report, err := newTestOrchestrator(observer, nil, ledger, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Attempted != 1 || report.Succeeded != 1 {
		t.Errorf("attempted/succeeded = %d/%d, want 1/1", report.Attempted, report.Succeeded)
	}

	ledger = &fakeLedger{regionsErr: game.ErrPersist}
	observer = &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL")}}
	report, err = newTestOrchestrator(observer, nil, ledger, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Attempted != 1 {
		t.Errorf("Attempted = %d, want 1 with an unreadable workbook", report.Attempted)
	}
}

func TestRunSkipsInvalidRows(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{
		row(0, "SAC", "SAC"), row(1, "", "LAL"), row(2, "NYK", "BOS"), row(3, "NYK", "BOS"),
	}}

	report, err := newTestOrchestrator(observer, nil, &fakeLedger{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Attempted != 1 || observer.openedIndex[0] != 2 {
		t.Errorf("attempted %d, opened %v, want one game at index 2", report.Attempted, observer.openedIndex)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL"), row(1, "NYK", "BOS")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestOrchestrator(observer, nil, &fakeLedger{}, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Attempted != 0 {
		t.Errorf("Attempted = %d, want 0 after cancellation", report.Attempted)
	}
}

func TestCapPlan(t *testing.T) {
	live := func(n int) []reconciliation.LiveGame { return make([]reconciliation.LiveGame, n) }
	byURL := func(n int) []game.Identity { return make([]game.Identity, n) }

	tests := []struct {
		name             string
		live, byURL, max int
		wantLive, wantBy int
	}{
		{"no cap", 3, 2, 0, 3, 2},
		{"under cap", 1, 1, 5, 1, 1},
		{"cap inside live", 3, 2, 2, 2, 0},
		{"cap spills into by-URL", 2, 3, 3, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := capPlan(reconciliation.Plan{Live: live(tt.live), ByURL: byURL(tt.byURL)}, tt.max)
			if len(plan.Live) != tt.wantLive || len(plan.ByURL) != tt.wantBy {
				t.Errorf("capPlan = %d live, %d by-URL, want %d and %d",
					len(plan.Live), len(plan.ByURL), tt.wantLive, tt.wantBy)
			}
		})
	}
}

func TestRunPausesBetweenConsecutiveGames(t *testing.T) {
	observer := &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL"), row(1, "NYK", "BOS")}}
	mia := persistedRegion(1, "MIA", "ORL", "u1", false)
	den := persistedRegion(4, "DEN", "PHX", "u2", false)
	ledger := &fakeLedger{regions: map[string]workbook.RegionState{mia.Game.ID(): mia, den.Game.ID(): den}}

	o := newTestOrchestrator(observer, nil, ledger, func(c *Config) { c.RequestDelay = 2 * time.Second })
	var delays []time.Duration
	o.wait = func(ctx context.Context, d time.Duration) bool {
		delays = append(delays, d)
		observer.event("pause")
		return false
	}

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"list:0", "pause", "list:1", "url:u1", "pause", "url:u2"}
	if len(observer.events) != len(want) {
		t.Fatalf("events = %v, want %v", observer.events, want)
	}
	for i := range want {
		if observer.events[i] != want[i] {
			t.Errorf("events = %v, want %v", observer.events, want)
			break
		}
	}
	for _, d := range delays {
		if d != 2*time.Second {
			t.Errorf("pause of %v, want 2s", d)
		}
	}
}

func TestRunInterruptDuringPauseSkipsOnlyTheWait(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sig := make(chan os.Signal, 1)
	ctx, in := WatchInterrupts(parent, sig)
	defer in.Stop()

	go func() {
		for ctx.Err() == nil {
			in.mu.Lock()
			pausing := in.waiting != nil
			in.mu.Unlock()
			if pausing {
				sig <- syscall.SIGINT
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	observer := &fakeObserver{rows: []polymarket.RawGame{row(0, "SAC", "LAL"), row(1, "NYK", "BOS")}}
	o := newTestOrchestrator(observer, nil, &fakeLedger{}, func(c *Config) { c.RequestDelay = time.Hour }).
		WithInterrupts(in)

	report, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if parent.Err() != nil {
		t.Fatal("run waited out the full delay")
	}
	if ctx.Err() != nil {
		t.Errorf("run context cancelled: %v", ctx.Err())
	}
	if report.Attempted != 2 || len(observer.openedIndex) != 2 {
		t.Errorf("attempted = %d, opened = %v, want both games", report.Attempted, observer.openedIndex)
	}
}
