package game

import "strings"

// teamAliases maps short codes the games page has used to the canonical
// three-letter code
var teamAliases = map[string]string{
	"GS":   "GSW",
	"NY":   "NYK",
	"NO":   "NOP",
	"SA":   "SAS",
	"PHO":  "PHX",
	"WSH":  "WAS",
	"UTAH": "UTA",
}

// NormalizeTeamCode converts a team code to its canonical form
func NormalizeTeamCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if canonical, ok := teamAliases[code]; ok {
		return canonical
	}
	return code
}

// SameTeam reports whether two codes name the same team
func SameTeam(a, b string) bool {
	return NormalizeTeamCode(a) == NormalizeTeamCode(b)
}
