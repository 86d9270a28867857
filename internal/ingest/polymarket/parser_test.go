package polymarket

import (
	"math"
	"testing"

	"github.com/fortuna/moneta/internal/game"
)

const gamesListHTML = `<html><body>
<div class="list">
  <div class="row">
    <p>Tue, December 9</p>
    <p>7:00 PM</p>
    <button>SAC
      39¢</button>
    <button>LAL62¢</button>
    <button>SAC +5.5 48¢</button>
    <button>O 228.5 51¢</button>
    <a href="/event/nba-sac-lal-2025-12-09"><span>Game View</span></a>
  </div>
  <div class="row">
    <p>7:00 PM</p>
    <button>SAC39¢</button>
    <button>LAL62¢</button>
    <a href="/event/nba-sac-lal-2025-12-09"><span>Game View</span></a>
  </div>
  <div class="row">
    <p>8:30 pm</p>
    <button>NYK55¢</button>
    <button>BOS46¢</button>
    <a href="/event/nba-nyk-bos-2025-12-09"><span>Game View</span></a>
  </div>
  <div class="row">
    <p>10:00 PM</p>
    <button>Yes 40¢</button>
    <a href="/event/something-else"><span>Game View</span></a>
  </div>
</div>
</body></html>`

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text  string
		price float64
		ok    bool
	}{
		{"SAC39¢", 0.39, true},
		{"no price here", 0, false},
		{" 5 ¢ ", 0.05, true},
		{"LAL\n62¢", 0.62, true},
		{"100¢", 1.0, true},
		{"¢", 0, false},
	}

	for _, tt := range tests {
		price, ok := ParsePrice(tt.text)
		if ok != tt.ok || !approxEqual(price, tt.price) {
			t.Errorf("ParsePrice(%q) = (%v, %v), want (%v, %v)", tt.text, price, ok, tt.price, tt.ok)
		}
	}
}

func TestParseTeamCode(t *testing.T) {
	tests := []struct {
		text string
		code string
		ok   bool
	}{
		{"SAC39¢", "SAC", true},
		{"39¢", "", false},
		{"  NY55¢", "NY", true},
		{"sac39¢", "", false},
	}

	for _, tt := range tests {
		code, ok := ParseTeamCode(tt.text)
		if code != tt.code || ok != tt.ok {
			t.Errorf("ParseTeamCode(%q) = (%q, %v), want (%q, %v)", tt.text, code, ok, tt.code, tt.ok)
		}
	}
}

func TestIsMoneylineButton(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"SAC39¢", true},
		{"SAC\n 39¢", true},
		{"SAC +5.5 48¢", false},
		{"LAL -5.5 52¢", false},
		{"O 228.5 51¢", false},
		{"SAC39", false},
		{"SACR39¢", false},
	}

	for _, tt := range tests {
		if got := IsMoneylineButton(tt.text); got != tt.want {
			t.Errorf("IsMoneylineButton(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestParseGameRows(t *testing.T) {
	doc, err := ParseHTML(gamesListHTML)
	if err != nil {
		t.Fatalf("ParseHTML returned error: %v", err)
	}

	rows := ParseGameRows(doc)
	if len(rows) != 2 {
		t.Fatalf("ParseGameRows returned %d rows, want 2: %+v", len(rows), rows)
	}

	first := rows[0]
	if first.Index != 0 || first.Away != "SAC" || first.Home != "LAL" || first.StartTime != "7:00 PM" {
		t.Errorf("rows[0] = %+v, want SAC @ LAL at index 0, 7:00 PM", first)
	}
	if first.AwayPrice == nil || !approxEqual(*first.AwayPrice, 0.39) {
		t.Errorf("rows[0].AwayPrice = %v, want 0.39", first.AwayPrice)
	}
	if first.HomePrice == nil || !approxEqual(*first.HomePrice, 0.62) {
		t.Errorf("rows[0].HomePrice = %v, want 0.62", first.HomePrice)
	}

	second := rows[1]
	if second.Index != 2 || second.Away != "NYK" || second.Home != "BOS" || second.StartTime != "8:30 PM" {
		t.Errorf("rows[1] = %+v, want NYK @ BOS at index 2, 8:30 PM", second)
	}

	id := second.Identity("2025-12-09").ID()
	if id != "2025-12-09_NYK_BOS" {
		t.Errorf("Identity().ID() = %q, want %q", id, "2025-12-09_NYK_BOS")
	}
}

func TestRawGameValidate(t *testing.T) {
	tests := []struct {
		name    string
		row     RawGame
		wantErr bool
	}{
		{"valid", RawGame{Away: "SAC", Home: "LAL"}, false},
		{"missing home", RawGame{Away: "SAC"}, true},
		{"same team twice", RawGame{Away: "SAC", Home: "SAC"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.row.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseMoneylinePrices(t *testing.T) {
	doc, err := ParseHTML(`<html><body>
		<button>LAL62¢</button>
		<button>SAC39¢</button>
		<button>LAL -5.5 50¢</button>
		<button>LAL10¢</button>
	</body></html>`)
	if err != nil {
		t.Fatalf("ParseHTML returned error: %v", err)
	}

	g := game.Identity{Date: "2025-12-09", Away: "SAC", Home: "LAL"}
	home, away := ParseMoneylinePrices(doc, g)
	if home == nil || !approxEqual(*home, 0.62) {
		t.Errorf("home = %v, want 0.62", home)
	}
	if away == nil || !approxEqual(*away, 0.39) {
		t.Errorf("away = %v, want 0.39", away)
	}

	other := game.Identity{Date: "2025-12-09", Away: "NYK", Home: "BOS"}
	home, away = ParseMoneylinePrices(doc, other)
	if home != nil || away != nil {
		t.Errorf("prices for absent teams = (%v, %v), want (nil, nil)", home, away)
	}
}

func TestParseMoneylinePricesMatchesAliases(t *testing.T) {
	doc, err := ParseHTML(`<html><body>
		<button>NY 44¢</button>
		<button>GS 57¢</button>
	</body></html>`)
	if err != nil {
		t.Fatalf("ParseHTML returned error: %v", err)
	}

	stored := game.Identity{Date: "2025-12-09", Away: "NYK", Home: "GSW"}
	home, away := ParseMoneylinePrices(doc, stored)
	if home == nil || !approxEqual(*home, 0.57) {
		t.Errorf("home = %v, want 0.57", home)
	}
	if away == nil || !approxEqual(*away, 0.44) {
		t.Errorf("away = %v, want 0.44", away)
	}
}

func TestParseMarketToken(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		token string
		ok    bool
	}{
		{
			name:  "plain json",
			html:  `{"clobTokenIds":"[\"71321045679252212594626385532706912750332728571942532289631379312455583992563\",\"5213\"]"}`,
			token: "71321045679252212594626385532706912750332728571942532289631379312455583992563",
			ok:    true,
		},
		{
			name:  "escaped inside script payload",
			html:  `self.__next_f.push([1,"{\"clobTokenIds\":\"[\\\"1234567890123\\\",\\\"42\\\"]\"}"])`,
			token: "1234567890123",
			ok:    true,
		},
		{
			name: "missing",
			html: `<html><body>no market here</body></html>`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := ParseMarketToken(tt.html)
			if token != tt.token || ok != tt.ok {
				t.Errorf("ParseMarketToken() = (%q, %v), want (%q, %v)", token, ok, tt.token, tt.ok)
			}
		})
	}
}

func TestIsFinal(t *testing.T) {
	tests := []struct {
		html string
		want bool
	}{
		{`<div><span>Final</span><span>112 - 104</span></div>`, true},
		{`<div><span>ENDED</span></div>`, true},
		{`<div><span>Q3 5:12</span></div>`, false},
		{`<div><span>Finalists announced</span></div>`, false},
	}

	for _, tt := range tests {
		doc, err := ParseHTML(tt.html)
		if err != nil {
			t.Fatalf("ParseHTML(%q) returned error: %v", tt.html, err)
		}
		if got := IsFinal(doc); got != tt.want {
			t.Errorf("IsFinal(%q) = %v, want %v", tt.html, got, tt.want)
		}
	}
}
