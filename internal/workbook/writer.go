package workbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/fortuna/moneta/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// defaultSheet is the sheet excelize creates in a new file
const defaultSheet = "Sheet1"

var pictureExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// Writer appends observations to a workbook file. Every call opens the
// file, applies all mutations in memory and commits once by writing a
// temporary file and renaming it over the original.
type Writer struct {
	path   string
	logger *logrus.Logger
}

// NewWriter creates a writer for path
func NewWriter(path string, logger *logrus.Logger) *Writer {
	return &Writer{
		path:   path,
		logger: logger,
	}
}

// Path returns the workbook location
func (w *Writer) Path() string {
	return w.path
}

// Regions reads the persisted regions of date's sheet
func (w *Writer) Regions(date string) (map[string]RegionState, error) {
	return LoadRegions(w.path, date, w.logger)
}

// AppendEntry writes one observation and commits
func (w *Writer) AppendEntry(ctx context.Context, obs *game.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, _, err := game.ParseID(obs.Game.ID()); err != nil {
		w.logger.WithError(err).Warn("⚠️  Skipping observation with malformed identifier")
		return err
	}

	doc, err := w.open()
	if err != nil {
		return err
	}
	defer doc.file.Close()

	if err := doc.apply(obs); err != nil {
		return fmt.Errorf("%w: %s: %v", game.ErrPersist, obs.Game.ID(), err)
	}
	if err := w.commit(doc.file); err != nil {
		return err
	}

	w.logger.WithField("game_id", obs.Game.ID()).Info("✓ Appended entry")
	return nil
}

// AppendEntries writes the successful observations and commits once.
// A failing observation is logged and skipped.
func (w *Writer) AppendEntries(ctx context.Context, results []*game.Observation) (int, error) {
	doc, err := w.open()
	if err != nil {
		return 0, err
	}
	defer doc.file.Close()

	appended := 0
	for _, obs := range results {
		if err := ctx.Err(); err != nil {
			break
		}
		if obs == nil || !obs.Success {
			continue
		}

		logger := w.logger.WithField("game_id", obs.Game.ID())
		if _, _, _, err := game.ParseID(obs.Game.ID()); err != nil {
			logger.WithError(err).Warn("⚠️  Skipping observation with malformed identifier")
			continue
		}
		if err := doc.apply(obs); err != nil {
			logger.WithError(err).Warn("⚠️  Failed to stage entry")
			continue
		}
		appended++
	}

	if appended == 0 {
		return 0, nil
	}
	if err := w.commit(doc.file); err != nil {
		return 0, err
	}

	w.logger.WithField("entries", appended).Info("✓ Appended entries")
	return appended, nil
}

// document is a workbook open for one writer call
type document struct {
	file       *excelize.File
	isNew      bool
	titleStyle int
	logger     *logrus.Logger
}

func (w *Writer) open() (*document, error) {
	f, err := excelize.OpenFile(w.path)
	isNew := false
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		isNew = true
	} else if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", game.ErrPersist, w.path, err)
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12},
		Alignment: &excelize.Alignment{Horizontal: "left"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: creating title style: %v", game.ErrPersist, err)
	}

	return &document{file: f, isNew: isNew, titleStyle: titleStyle, logger: w.logger}, nil
}

// commit saves to a temporary file beside the target and renames it in
func (w *Writer) commit(f *excelize.File) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", game.ErrPersist, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".moneta-*.xlsx")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", game.ErrPersist, err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := f.SaveAs(tmpName); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: saving workbook: %v", game.ErrPersist, err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %v", game.ErrPersist, w.path, err)
	}
	return nil
}

// apply resolves or allocates obs's region and writes the next entry
func (d *document) apply(obs *game.Observation) error {
	sheet := SheetName(obs.Game.Date)
	if err := d.ensureSheet(sheet); err != nil {
		return err
	}

	// decode the picture before any cell changes so a bad file cannot
	// leave a header without an entry
	picture := d.loadPicture(obs)

	col, found, err := FindRegion(d.file, sheet, obs.Game.ID())
	if err != nil {
		return err
	}
	if !found {
		col, err = NextAvailableColumn(d.file, sheet)
		if err != nil {
			return err
		}
		if err := d.writeHeader(sheet, col, obs.Game); err != nil {
			d.clearRegion(sheet, col, FirstEntryRow)
			return err
		}
		if err := d.writeEntry(sheet, col, FirstEntryRow, obs, picture); err != nil {
			d.clearRegion(sheet, col, FirstEntryRow)
			return err
		}
		return nil
	}

	if err := d.backfillURL(sheet, col, obs.Game.URL); err != nil {
		return err
	}
	row, err := NextEntryRow(d.file, sheet, col)
	if err != nil {
		return err
	}
	return d.writeEntry(sheet, col, row, obs, picture)
}

// clearRegion blanks a region allocated in this call whose first entry
// could not be written, so the commit never carries a bare header
func (d *document) clearRegion(sheet string, col, entryRow int) {
	f := d.file
	for row := TitleRow; row < entryRow+EntryStride; row++ {
		for c := col; c < col+2; c++ {
			_ = f.SetCellValue(sheet, cellName(c, row), "")
		}
	}
	_ = f.SetCellHyperLink(sheet, cellName(col, URLRow), "", "None")
	_ = f.UnmergeCell(sheet, cellName(col, entryRow+screenshotOffset), cellName(col+1, entryRow+screenshotOffset))
	if pics, err := f.GetPictures(sheet, cellName(col, entryRow+screenshotOffset)); err == nil && len(pics) > 0 {
		_ = f.DeletePicture(sheet, cellName(col, entryRow+screenshotOffset))
	}
}

func (d *document) ensureSheet(sheet string) error {
	idx, err := d.file.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if idx != -1 {
		return nil
	}

	if _, err := d.file.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %s: %w", sheet, err)
	}

	if d.isNew {
		if i, _ := d.file.GetSheetIndex(defaultSheet); i != -1 {
			if err := d.file.DeleteSheet(defaultSheet); err != nil {
				return err
			}
		}
		d.isNew = false
	}

	if idx, err = d.file.GetSheetIndex(sheet); err == nil && idx != -1 {
		d.file.SetActiveSheet(idx)
	}
	return nil
}

func (d *document) writeHeader(sheet string, col int, g game.Identity) error {
	f := d.file
	start, date := scheduleCells(g)

	cells := []struct {
		cell  string
		value string
	}{
		{cellName(col, TitleRow), g.Title()},
		{cellName(col, ScheduleRow), start},
		{cellName(col+1, ScheduleRow), date},
		{cellName(col, URLRow), g.URL},
	}
	for _, c := range cells {
		if err := f.SetCellValue(sheet, c.cell, c.value); err != nil {
			return err
		}
	}

	if err := f.SetCellStyle(sheet, cellName(col, TitleRow), cellName(col, TitleRow), d.titleStyle); err != nil {
		return err
	}
	if g.URL != "" {
		if err := f.SetCellHyperLink(sheet, cellName(col, URLRow), g.URL, "External"); err != nil {
			return err
		}
	}

	first, _ := excelize.ColumnNumberToName(col)
	second, _ := excelize.ColumnNumberToName(col + 1)
	spacer, _ := excelize.ColumnNumberToName(col + 2)
	if err := f.SetColWidth(sheet, first, second, contentColumnWidth); err != nil {
		return err
	}
	return f.SetColWidth(sheet, spacer, spacer, spacerColumnWidth)
}

// backfillURL fills an empty URL cell. A stored URL is never replaced.
func (d *document) backfillURL(sheet string, col int, url string) error {
	if url == "" {
		return nil
	}
	cell := cellName(col, URLRow)
	current, err := d.file.GetCellValue(sheet, cell)
	if err != nil {
		return err
	}
	if strings.TrimSpace(current) != "" {
		return nil
	}
	if err := d.file.SetCellValue(sheet, cell, url); err != nil {
		return err
	}
	return d.file.SetCellHyperLink(sheet, cell, url, "External")
}

func (d *document) writeEntry(sheet string, col, row int, obs *game.Observation, picture *excelize.Picture) error {
	f := d.file
	shotCell := cellName(col, row+screenshotOffset)

	if err := f.MergeCell(sheet, shotCell, cellName(col+1, row+screenshotOffset)); err != nil {
		return err
	}
	if picture != nil {
		if err := f.SetRowHeight(sheet, row+screenshotOffset, screenshotRowHeight); err != nil {
			return err
		}
		if err := f.AddPictureFromBytes(sheet, shotCell, picture); err != nil {
			return err
		}
	} else if err := f.SetCellValue(sheet, shotCell, noScreenshot); err != nil {
		return err
	}

	var awayLow, homeLow *float64
	if obs.Low != nil {
		awayLow, homeLow = &obs.Low.Away, &obs.Low.Home
	}
	if err := f.SetCellValue(sheet, cellName(col, row+lowPriceOffset), FormatLow(awayLow)); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cellName(col+1, row+lowPriceOffset), FormatLow(homeLow)); err != nil {
		return err
	}

	return f.SetCellValue(sheet, cellName(col, row+captionOffset), CaptionFor(obs.CapturedAt, obs.Final))
}

// loadPicture returns nil when the observation has no decodable screenshot
func (d *document) loadPicture(obs *game.Observation) *excelize.Picture {
	if obs.ScreenshotPath == "" {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(obs.ScreenshotPath))
	if !pictureExtensions[ext] {
		d.logger.WithField("game_id", obs.Game.ID()).Warnf("⚠️  Unsupported screenshot type %q, writing placeholder", ext)
		return nil
	}
	data, err := os.ReadFile(obs.ScreenshotPath)
	if err != nil {
		d.logger.WithError(err).WithField("game_id", obs.Game.ID()).Warn("⚠️  Screenshot unreadable, writing placeholder")
		return nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		d.logger.WithError(err).WithField("game_id", obs.Game.ID()).Warn("⚠️  Screenshot is not a valid image, writing placeholder")
		return nil
	}
	return &excelize.Picture{
		Extension: ext,
		File:      data,
		Format: &excelize.GraphicOptions{
			AltText:         obs.Game.Title(),
			AutoFit:         true,
			LockAspectRatio: true,
			Positioning:     "oneCell",
		},
	}
}
