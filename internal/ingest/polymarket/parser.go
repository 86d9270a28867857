package polymarket

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fortuna/moneta/internal/game"
)

const (
	// GameViewText labels the link from the games list into a game page
	GameViewText = "Game View"

	// maxContainerDepth bounds the climb from a Game View link to its row
	maxContainerDepth = 20
)

var (
	pricePattern     = regexp.MustCompile(`(\d+)\s*¢`)
	teamCodePattern  = regexp.MustCompile(`^([A-Z]{2,3})`)
	moneylinePattern = regexp.MustCompile(`^([A-Z]{2,3})(\d+)¢$`)
	startTimePattern = regexp.MustCompile(`(?i)(\d{1,2}:\d{2}\s*(?:AM|PM))`)
	finalPattern     = regexp.MustCompile(`(?i)^(final|ended)\b`)

	// clobTokenIds is embedded as a JSON string inside the page's Next.js
	// payload, so quotes may or may not be backslash-escaped
	tokenPattern = regexp.MustCompile(`clobTokenIds\\*"\s*:\s*\\*"\[\\*"(\d{6,})\\*"`)
)

// RawGame is one row of the games list, validated at the page boundary
type RawGame struct {
	Index     int
	Away      string
	Home      string
	AwayPrice *float64
	HomePrice *float64
	StartTime string
}

// Validate rejects rows with missing or identical team codes
func (r RawGame) Validate() error {
	if r.Away == "" || r.Home == "" {
		return fmt.Errorf("%w: game row %d has no team codes", game.ErrExtraction, r.Index)
	}
	if r.Away == r.Home {
		return fmt.Errorf("%w: game row %d lists %s twice", game.ErrExtraction, r.Index, r.Away)
	}
	return nil
}

// Identity converts the row into a game identity for date
func (r RawGame) Identity(date string) game.Identity {
	return game.Identity{
		Date:      date,
		Away:      r.Away,
		Home:      r.Home,
		StartTime: r.StartTime,
	}
}

// ParseHTML converts raw HTML to a goquery Document for parsing
func ParseHTML(htmlContent string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// ParsePrice turns text like "SAC39¢" or " 5 ¢ " into a probability
func ParsePrice(text string) (float64, bool) {
	matches := pricePattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return 0, false
	}
	cents, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}
	return float64(cents) / 100.0, true
}

// ParseTeamCode extracts the leading team abbreviation from "SAC39¢"
func ParseTeamCode(text string) (string, bool) {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", "")
	matches := teamCodePattern.FindStringSubmatch(text)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// IsMoneylineButton reports whether the button text is a bare
// team+price label. Spread and total buttons carry a sign or decimal
// and do not match.
func IsMoneylineButton(text string) bool {
	return moneylinePattern.MatchString(compact(text))
}

// ParseGameRows extracts one RawGame per "Game View" link on the games
// list. Rows whose container cannot be resolved are skipped, and
// duplicates keep the first index.
func ParseGameRows(doc *goquery.Document) []RawGame {
	var rows []RawGame
	seen := make(map[string]bool)

	for i, link := range gameViewLinks(doc) {
		row, ok := parseGameRow(link, i)
		if !ok {
			continue
		}
		key := row.Away + "@" + row.Home
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, row)
	}

	return rows
}

// gameViewLinks returns the leaf elements whose text is exactly "Game View",
// in document order. The index into this slice is the click index.
func gameViewLinks(doc *goquery.Document) []*goquery.Selection {
	var links []*goquery.Selection
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() == 0 && strings.TrimSpace(s.Text()) == GameViewText {
			links = append(links, s)
		}
	})
	return links
}

// parseGameRow climbs from a Game View link to the nearest ancestor that
// holds exactly two moneyline buttons. The first button is the away side.
func parseGameRow(link *goquery.Selection, index int) (RawGame, bool) {
	container := link
	for depth := 0; depth < maxContainerDepth; depth++ {
		container = container.Parent()
		if container.Length() == 0 {
			break
		}

		buttons := moneylineButtons(container)
		if len(buttons) != 2 {
			continue
		}

		row := RawGame{
			Index:     index,
			Away:      buttons[0].team,
			Home:      buttons[1].team,
			AwayPrice: floatPtr(buttons[0].price),
			HomePrice: floatPtr(buttons[1].price),
		}
		if m := startTimePattern.FindStringSubmatch(container.Text()); len(m) > 1 {
			row.StartTime = strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
		}
		if row.Validate() != nil {
			return RawGame{}, false
		}
		return row, true
	}

	return RawGame{}, false
}

type moneylineButton struct {
	team  string
	price float64
}

func moneylineButtons(s *goquery.Selection) []moneylineButton {
	var buttons []moneylineButton
	s.Find("button").Each(func(_ int, btn *goquery.Selection) {
		text := compact(btn.Text())
		m := moneylinePattern.FindStringSubmatch(text)
		if len(m) != 3 {
			return
		}
		cents, err := strconv.Atoi(m[2])
		if err != nil {
			return
		}
		buttons = append(buttons, moneylineButton{team: m[1], price: float64(cents) / 100.0})
	})
	return buttons
}

// ParseMoneylinePrices reads the current price of each side from a game
// page. Either side may be missing. Page codes and g's codes are
// compared in canonical form.
func ParseMoneylinePrices(doc *goquery.Document, g game.Identity) (home, away *float64) {
	for _, b := range moneylineButtons(doc.Selection) {
		switch {
		case game.SameTeam(b.team, g.Home):
			if home == nil {
				home = floatPtr(b.price)
			}
		case game.SameTeam(b.team, g.Away):
			if away == nil {
				away = floatPtr(b.price)
			}
		}
	}
	return home, away
}

// ParseMarketToken finds the first outcome token of the moneyline market.
// The first outcome is the away team.
func ParseMarketToken(htmlContent string) (string, bool) {
	m := tokenPattern.FindStringSubmatch(htmlContent)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// IsFinal reports whether the game page shows a terminal status label
func IsFinal(doc *goquery.Document) bool {
	final := false
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() != 0 {
			return true
		}
		text := strings.TrimSpace(s.Text())
		if len(text) <= 24 && finalPattern.MatchString(text) {
			final = true
			return false
		}
		return true
	})
	return final
}

func compact(text string) string {
	return strings.Join(strings.Fields(text), "")
}

func floatPtr(v float64) *float64 {
	return &v
}
