package reconciliation

import (
	"github.com/fortuna/moneta/internal/game"
	"github.com/fortuna/moneta/internal/workbook"
)

// Matcher finds the persisted region for a live game
type Matcher struct {
	byID      map[string]workbook.RegionState
	byMatchup map[string]string // matchup key -> game ID
}

// NewMatcher indexes persisted regions
func NewMatcher(persisted map[string]workbook.RegionState) *Matcher {
	m := &Matcher{
		byID:      persisted,
		byMatchup: make(map[string]string, len(persisted)),
	}
	for id, region := range persisted {
		key := matchupKey(region.Game)
		if existing, ok := m.byMatchup[key]; ok && existing < id {
			continue
		}
		m.byMatchup[key] = id
	}
	return m
}

// Find returns the persisted region for g, matching on the exact ID first
// and then on canonical team codes for the same date
func (m *Matcher) Find(g game.Identity) (workbook.RegionState, bool) {
	if region, ok := m.byID[g.ID()]; ok {
		return region, true
	}
	if id, ok := m.byMatchup[matchupKey(g)]; ok {
		return m.byID[id], true
	}
	return workbook.RegionState{}, false
}

func matchupKey(g game.Identity) string {
	return g.Date + "|" + game.NormalizeTeamCode(g.Away) + "@" + game.NormalizeTeamCode(g.Home)
}
