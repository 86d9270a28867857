package main

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/fortuna/moneta/internal/game"
)

// printSummary writes one row per processed game followed by the totals
func printSummary(out io.Writer, report *game.RunReport) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GAME\tHOME\tAWAY\tSCREENSHOT\tSTATUS")
	for _, obs := range report.Results {
		shot := "-"
		if obs.ScreenshotPath != "" {
			shot = filepath.Base(obs.ScreenshotPath)
		}
		fmt.Fprintf(tw, "%s @ %s\t%s\t%s\t%s\t%s\n",
			obs.Game.Away, obs.Game.Home, cents(obs.HomePrice), cents(obs.AwayPrice), shot, obs.Status())
	}
	tw.Flush()

	fmt.Fprintf(out, "\n%d/%d games captured, %d persisted", report.Succeeded, report.Attempted, report.Persisted)
	if report.DryRun {
		fmt.Fprint(out, " (dry run)")
	}
	if report.SkippedFinal > 0 || report.Unrecoverable > 0 {
		fmt.Fprintf(out, "; %d final skipped, %d without URL", report.SkippedFinal, report.Unrecoverable)
	}
	fmt.Fprintln(out)
}

func cents(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f¢", *p*100)
}
