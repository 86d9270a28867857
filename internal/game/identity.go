package game

import (
	"fmt"
	"strings"
)

// DateLayout is the calendar-day format used for game dates and sheet names
const DateLayout = "2006-01-02"

// Identity identifies one NBA game on one calendar day
type Identity struct {
	Date      string `json:"date"`
	Away      string `json:"away"`
	Home      string `json:"home"`
	StartTime string `json:"start_time,omitempty"`
	URL       string `json:"url,omitempty"`
}

// MakeID formats the stable game key: {date}_{away}_{home}
func MakeID(date, away, home string) string {
	return fmt.Sprintf("%s_%s_%s", date, away, home)
}

// ParseID splits a game key back into its parts.
// Team codes never contain underscores, so the last two segments are
// always the teams and everything before them is the date.
func ParseID(id string) (date, away, home string, err error) {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}

	n := len(parts)
	date = strings.Join(parts[:n-2], "_")
	away, home = parts[n-2], parts[n-1]
	if date == "" || away == "" || home == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}

	return date, away, home, nil
}

// FromID rebuilds an Identity from a game key
func FromID(id string) (Identity, error) {
	date, away, home, err := ParseID(id)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Date: date, Away: away, Home: home}, nil
}

// ID returns the game key
func (g Identity) ID() string {
	return MakeID(g.Date, g.Away, g.Home)
}

// Validate checks that the key parts are present
func (g Identity) Validate() error {
	if g.Date == "" || g.Away == "" || g.Home == "" {
		return fmt.Errorf("%w: date=%q away=%q home=%q", ErrMalformedIdentifier, g.Date, g.Away, g.Home)
	}
	return nil
}

// WithURL back-fills the canonical URL. An already known URL is kept.
func (g Identity) WithURL(url string) Identity {
	if g.URL == "" {
		g.URL = url
	}
	return g
}

// Title is the region header text: "Away @ Home"
func (g Identity) Title() string {
	return fmt.Sprintf("%s @ %s", g.Away, g.Home)
}

// SameMatchup reports whether both identities name the same team pair
func (g Identity) SameMatchup(other Identity) bool {
	return g.Away == other.Away && g.Home == other.Home
}

func (g Identity) String() string {
	return fmt.Sprintf("%s @ %s (%s)", g.Away, g.Home, g.Date)
}

// ParseTitle reads a "Away @ Home" header back into team codes
func ParseTitle(title string) (away, home string, ok bool) {
	parts := strings.Split(title, "@")
	if len(parts) != 2 {
		return "", "", false
	}
	away = strings.TrimSpace(parts[0])
	home = strings.TrimSpace(parts[1])
	if away == "" || home == "" {
		return "", "", false
	}
	return away, home, true
}
