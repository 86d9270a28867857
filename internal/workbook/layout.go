// Package workbook keeps one sheet per game date and one column group per
// game within it.
//
// Each group is GroupWidth columns wide: two content columns followed by a
// spacer. Rows 1-3 hold the header (title, start time and date, URL). Entries
// follow from FirstEntryRow in EntryStride-row blocks: screenshot, low
// prices, capture caption, blank.
package workbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/xuri/excelize/v2"
)

const (
	GroupWidth    = 3
	TitleRow      = 1
	ScheduleRow   = 2
	URLRow        = 3
	FirstEntryRow = 4
	EntryStride   = 4

	screenshotOffset = 0
	lowPriceOffset   = 1
	captionOffset    = 2

	// maxEntries bounds a region scan on corrupt sheets
	maxEntries = 1000

	startPrefix   = "Start: "
	datePrefix    = "Date: "
	capturedLabel = "Captured: "
	finalSuffix   = " (FINAL)"
	noScreenshot  = "No screenshot"
	noPrice       = "-"

	captionTimeLayout = "3:04 PM"

	// rows tall enough for a chart capture scaled to fit two columns
	screenshotRowHeight = 180
	contentColumnWidth  = 42
	spacerColumnWidth   = 4
)

// RegionColumn returns the first column (1-based) of the n-th group (0-based)
func RegionColumn(n int) int {
	return 1 + n*GroupWidth
}

// RegionIndex is the inverse of RegionColumn
func RegionIndex(col int) int {
	return (col - 1) / GroupWidth
}

// EntryRow returns the screenshot row of the k-th entry (0-based)
func EntryRow(k int) int {
	return FirstEntryRow + k*EntryStride
}

// SheetName is the partition for a game date
func SheetName(date string) string {
	return date
}

// CaptionFor formats the capture caption of an entry
func CaptionFor(capturedAt time.Time, final bool) string {
	caption := capturedLabel + capturedAt.Format(captionTimeLayout)
	if final {
		caption += finalSuffix
	}
	return caption
}

// IsCaptured reports whether a caption cell holds a capture marker
func IsCaptured(caption string) bool {
	return strings.Contains(strings.ToLower(caption), "captured")
}

// IsFinalCaption reports whether a caption carries the terminal marker
func IsFinalCaption(caption string) bool {
	return strings.Contains(strings.ToLower(caption), "final")
}

// FormatLow renders a low price to three decimals, or a dash when absent
func FormatLow(v *float64) string {
	if v == nil {
		return noPrice
	}
	return fmt.Sprintf("%.3f", *v)
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		// col and row always come from RegionColumn and EntryRow
		panic(err)
	}
	return name
}

func scheduleCells(g game.Identity) (start, date string) {
	start = startPrefix + g.StartTime
	if g.StartTime == "" {
		start = startPrefix + "TBD"
	}
	return start, datePrefix + g.Date
}
