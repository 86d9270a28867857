package reconciliation

import (
	"sort"

	"github.com/fortuna/moneta/internal/game"
	"github.com/fortuna/moneta/internal/workbook"
	"github.com/sirupsen/logrus"
)

// LiveGame is a game currently listed on the games page. Index is its
// position among the page's "Game View" links.
type LiveGame struct {
	Game  game.Identity
	Index int
}

// Plan says which games a run processes and how
type Plan struct {
	// Live games are opened from the games list
	Live []LiveGame
	// ByURL games are persisted, not final, not listed, and opened directly
	ByURL []game.Identity
	// SkippedFinal holds IDs of games whose region is already final
	SkippedFinal []string
	// Unrecoverable games are persisted and not final but have no stored URL
	Unrecoverable []game.Identity
}

// Total is the number of games the plan will process
func (p Plan) Total() int {
	return len(p.Live) + len(p.ByURL)
}

// Partition splits live and persisted games into processing paths.
//
// A live game whose region is final is skipped. Otherwise the stored URL
// is back-filled and the game stays on the live path. Persisted games that
// are not live and not final go by URL when one is stored and are
// unrecoverable otherwise. By-URL games keep their sheet order.
func Partition(live []LiveGame, persisted map[string]workbook.RegionState) Plan {
	var plan Plan
	matcher := NewMatcher(persisted)
	claimed := make(map[string]bool)

	for _, lg := range live {
		region, ok := matcher.Find(lg.Game)
		if !ok {
			plan.Live = append(plan.Live, lg)
			continue
		}
		claimed[region.Game.ID()] = true

		if region.IsFinal {
			plan.SkippedFinal = append(plan.SkippedFinal, lg.Game.ID())
			continue
		}
		// keep the stored team codes so the entry lands in the same region
		lg.Game.Away, lg.Game.Home = region.Game.Away, region.Game.Home
		lg.Game = lg.Game.WithURL(region.URL)
		plan.Live = append(plan.Live, lg)
	}

	for _, region := range sortedRegions(persisted) {
		id := region.Game.ID()
		if claimed[id] {
			continue
		}
		switch {
		case region.IsFinal:
			plan.SkippedFinal = append(plan.SkippedFinal, id)
		case region.URL != "":
			plan.ByURL = append(plan.ByURL, region.Game.WithURL(region.URL))
		default:
			plan.Unrecoverable = append(plan.Unrecoverable, region.Game)
		}
	}

	return plan
}

func sortedRegions(persisted map[string]workbook.RegionState) []workbook.RegionState {
	regions := make([]workbook.RegionState, 0, len(persisted))
	for _, region := range persisted {
		regions = append(regions, region)
	}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Column != regions[j].Column {
			return regions[i].Column < regions[j].Column
		}
		return regions[i].Game.ID() < regions[j].Game.ID()
	})
	return regions
}

// Engine partitions each run's games and keeps running totals
type Engine struct {
	logger  *logrus.Logger
	metrics Metrics
}

// Metrics tracks partition statistics across runs
type Metrics struct {
	Plans         int
	Live          int
	ByURL         int
	SkippedFinal  int
	Unrecoverable int
}

// NewEngine creates a new reconciliation engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// Plan partitions the games and logs what will be skipped
func (e *Engine) Plan(live []LiveGame, persisted map[string]workbook.RegionState) Plan {
	plan := Partition(live, persisted)

	for _, id := range plan.SkippedFinal {
		e.logger.WithField("game_id", id).Info("⊘ Skipping final game")
	}
	for _, g := range plan.Unrecoverable {
		e.logger.WithField("game_id", g.ID()).Warn("⚠️  Persisted game is not live and has no stored URL, skipping")
	}

	e.metrics.Plans++
	e.metrics.Live += len(plan.Live)
	e.metrics.ByURL += len(plan.ByURL)
	e.metrics.SkippedFinal += len(plan.SkippedFinal)
	e.metrics.Unrecoverable += len(plan.Unrecoverable)

	e.logger.WithFields(logrus.Fields{
		"live":          len(plan.Live),
		"by_url":        len(plan.ByURL),
		"skipped_final": len(plan.SkippedFinal),
		"unrecoverable": len(plan.Unrecoverable),
	}).Info("Partitioned games")

	return plan
}

// GetMetrics returns current reconciliation metrics
func (e *Engine) GetMetrics() Metrics {
	return e.metrics
}
