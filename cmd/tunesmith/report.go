package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"tunesmith/internal/reconcile"
	"tunesmith/internal/services"
	"tunesmith/internal/workflow"
)

// printResult writes the per-collection summary of a sync or retry.
func printResult(out io.Writer, res workflow.Result) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader(fmt.Sprintf("%s (%s)", res.Collection, res.Duration.Round(10*time.Millisecond)), colorize))
	r := res.Report
	lines := []struct {
		label string
		kind  statusKind
		ids   []string
	}{
		{"Fetched", statusOK, r.Fetched},
		{"Added to library", statusOK, r.Created},
		{"Moved", statusOK, r.Moved},
		{"Retagged", statusOK, r.Retagged},
	}
	for _, line := range lines {
		fmt.Fprintln(out, renderStatusLine(line.label, line.kind, countWithIDs(line.ids), colorize))
	}

	failed, skipped := splitFailures(r)
	if len(failed) > 0 {
		fmt.Fprintln(out, renderStatusLine("Failed", statusError, countWithIDs(failed), colorize))
	}
	if len(skipped) > 0 {
		fmt.Fprintln(out, renderStatusLine("Skipped", statusWarn, countWithIDs(skipped), colorize))
	}
	if len(r.Untracked) > 0 {
		fmt.Fprintln(out, renderStatusLine("Untracked files", statusWarn, fmt.Sprintf("%d (run plan to see suggestions)", len(r.Untracked)), colorize))
	}
	if len(r.Orphans) > 0 {
		fmt.Fprintln(out, renderStatusLine("Undeclared files", statusInfo, fmt.Sprint(len(r.Orphans)), colorize))
	}
	if len(r.Unreadable) > 0 {
		fmt.Fprintln(out, renderStatusLine("Unreadable files", statusWarn, fmt.Sprint(len(r.Unreadable)), colorize))
	}
	if res.LogPath != "" {
		fmt.Fprintln(out, renderStatusLine("Log", statusInfo, res.LogPath, colorize))
	}
}

func splitFailures(r reconcile.Report) (failed, skipped []string) {
	for _, f := range r.Failed {
		if f.Outcome == services.OutcomeSkipped {
			skipped = append(skipped, f.ItemID)
		} else {
			failed = append(failed, f.ItemID)
		}
	}
	return failed, skipped
}

func countWithIDs(ids []string) string {
	const shown = 5
	if len(ids) == 0 {
		return "0"
	}
	list := ids
	suffix := ""
	if len(list) > shown {
		list = list[:shown]
		suffix = fmt.Sprintf(", +%d more", len(ids)-shown)
	}
	return fmt.Sprintf("%d (%s%s)", len(ids), strings.Join(list, ", "), suffix)
}
