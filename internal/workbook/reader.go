package workbook

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// Entry is one captured block of a region
type Entry struct {
	Row           int    `json:"row"`
	Caption       string `json:"caption"`
	HasScreenshot bool   `json:"has_screenshot"`
	AwayLow       string `json:"away_low"`
	HomeLow       string `json:"home_low"`
	Final         bool   `json:"final"`
}

// RegionState is what the sheet says about one game
type RegionState struct {
	Column  int           `json:"column"`
	Game    game.Identity `json:"game"`
	URL     string        `json:"url,omitempty"`
	IsFinal bool          `json:"is_final"`
	Entries []Entry       `json:"entries"`
}

// sheetGrid is a trimmed snapshot of a sheet's cell text
type sheetGrid [][]string

func loadGrid(f *excelize.File, sheet string) (sheetGrid, error) {
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		return nil, nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// value returns the text at a 1-based column and row
func (g sheetGrid) value(col, row int) string {
	if row < 1 || row > len(g) {
		return ""
	}
	cells := g[row-1]
	if col < 1 || col > len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[col-1])
}

func (g sheetGrid) width() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// ScanRegions reads every game region on sheet, keyed by game ID.
// A missing sheet yields an empty map.
func ScanRegions(f *excelize.File, sheet string) (map[string]RegionState, error) {
	regions, _, err := scanRegions(f, sheet)
	return regions, err
}

// scanRegions also returns the columns whose title could not be parsed
func scanRegions(f *excelize.File, sheet string) (map[string]RegionState, []int, error) {
	grid, err := loadGrid(f, sheet)
	if err != nil {
		return nil, nil, err
	}

	regions := make(map[string]RegionState)
	var malformed []int

	for col := RegionColumn(0); col <= grid.width(); col += GroupWidth {
		title := grid.value(col, TitleRow)
		if title == "" {
			continue
		}

		state, err := readRegion(grid, sheet, col)
		if err != nil {
			malformed = append(malformed, col)
			continue
		}
		if _, dup := regions[state.Game.ID()]; dup {
			// first region wins; later duplicates are never appended to
			continue
		}
		regions[state.Game.ID()] = state
	}

	return regions, malformed, nil
}

func readRegion(grid sheetGrid, sheet string, col int) (RegionState, error) {
	away, home, ok := game.ParseTitle(grid.value(col, TitleRow))
	if !ok {
		return RegionState{}, fmt.Errorf("%w: title %q in column %d", game.ErrMalformedIdentifier, grid.value(col, TitleRow), col)
	}

	date := strings.TrimSpace(strings.TrimPrefix(grid.value(col+1, ScheduleRow), strings.TrimSpace(datePrefix)))
	if date == "" {
		date = sheet
	}
	start := strings.TrimSpace(strings.TrimPrefix(grid.value(col, ScheduleRow), strings.TrimSpace(startPrefix)))
	if start == "TBD" {
		start = ""
	}
	url := grid.value(col, URLRow)

	identity := game.Identity{
		Date:      date,
		Away:      away,
		Home:      home,
		StartTime: start,
		URL:       url,
	}
	if err := identity.Validate(); err != nil {
		return RegionState{}, err
	}

	state := RegionState{
		Column:  col,
		Game:    identity,
		URL:     url,
		Entries: []Entry{},
	}

	lastCaption := ""
	for k := 0; k < maxEntries; k++ {
		row := EntryRow(k)
		if row > len(grid) {
			break
		}
		caption := grid.value(col, row+captionOffset)
		if !IsCaptured(caption) {
			continue
		}
		lastCaption = caption
		state.Entries = append(state.Entries, Entry{
			Row:           row,
			Caption:       caption,
			HasScreenshot: grid.value(col, row+screenshotOffset) != noScreenshot,
			AwayLow:       grid.value(col, row+lowPriceOffset),
			HomeLow:       grid.value(col+1, row+lowPriceOffset),
			Final:         IsFinalCaption(caption),
		})
	}
	state.IsFinal = lastCaption != "" && IsFinalCaption(lastCaption)

	return state, nil
}

// FindRegion locates the column group holding id's team pair
func FindRegion(f *excelize.File, sheet, id string) (int, bool, error) {
	_, away, home, err := game.ParseID(id)
	if err != nil {
		return 0, false, err
	}

	grid, err := loadGrid(f, sheet)
	if err != nil {
		return 0, false, err
	}

	for col := RegionColumn(0); col <= grid.width(); col += GroupWidth {
		a, h, ok := game.ParseTitle(grid.value(col, TitleRow))
		if ok && a == away && h == home {
			return col, true, nil
		}
	}
	return 0, false, nil
}

// NextAvailableColumn returns the first group whose title cell is empty
func NextAvailableColumn(f *excelize.File, sheet string) (int, error) {
	grid, err := loadGrid(f, sheet)
	if err != nil {
		return 0, err
	}

	col := RegionColumn(0)
	for grid.value(col, TitleRow) != "" {
		col += GroupWidth
	}
	return col, nil
}

// NextEntryRow returns the first entry row at or after the last capture
// whose caption cell is empty. Rows are never reused.
func NextEntryRow(f *excelize.File, sheet string, col int) (int, error) {
	grid, err := loadGrid(f, sheet)
	if err != nil {
		return 0, err
	}
	return nextEntryRow(grid, col), nil
}

func nextEntryRow(grid sheetGrid, col int) int {
	next := EntryRow(0)
	for k := 0; k < maxEntries; k++ {
		row := EntryRow(k)
		if row > len(grid) {
			break
		}
		if grid.value(col, row+captionOffset) != "" {
			next = EntryRow(k + 1)
		}
	}
	return next
}

// Reader is a read-only view of a workbook file
type Reader struct {
	file   *excelize.File
	logger *logrus.Logger
}

// OpenReader opens path for reading. A missing file reads as empty.
func OpenReader(path string, logger *logrus.Logger) (*Reader, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
	} else if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", game.ErrPersist, path, err)
	}
	return &Reader{file: f, logger: logger}, nil
}

// Close releases the workbook
func (r *Reader) Close() error {
	return r.file.Close()
}

// Dates lists the date sheets, oldest first
func (r *Reader) Dates() []string {
	var dates []string
	for _, name := range r.file.GetSheetList() {
		if isDateSheet(name) {
			dates = append(dates, name)
		}
	}
	sort.Strings(dates)
	return dates
}

// Regions scans one date's sheet, logging regions it has to skip
func (r *Reader) Regions(date string) (map[string]RegionState, error) {
	regions, malformed, err := scanRegions(r.file, SheetName(date))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrPersist, err)
	}
	for _, col := range malformed {
		r.logger.WithFields(logrus.Fields{"sheet": date, "column": col}).
			Warn("⚠️  Skipping region with malformed title")
	}
	return regions, nil
}

// LoadRegions opens path, scans date's sheet and closes the file again
func LoadRegions(path, date string, logger *logrus.Logger) (map[string]RegionState, error) {
	r, err := OpenReader(path, logger)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Regions(date)
}

func isDateSheet(name string) bool {
	_, err := time.Parse(game.DateLayout, name)
	return err == nil
}
