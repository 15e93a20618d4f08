package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/obligolabs/obligo/internal/types"
	"github.com/obligolabs/obligo/internal/ui"
)

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(fmt.Errorf("encode json: %w", err))
	}
}

// formatDeadline renders a deadline with remaining time, or "-" when unset.
func formatDeadline(deadline *time.Time) string {
	if deadline == nil {
		return "-"
	}
	remaining := time.Until(*deadline)
	days := int(remaining.Hours() / 24)
	date := deadline.Format("2006-01-02")
	switch {
	case remaining < 0:
		return ui.FailStyle.Render(fmt.Sprintf("%s (passed)", date))
	case days <= 3:
		return ui.FailStyle.Render(fmt.Sprintf("%s (%dd left)", date, days))
	case days <= 14:
		return ui.WarnStyle.Render(fmt.Sprintf("%s (%dd left)", date, days))
	default:
		return fmt.Sprintf("%s (%dd left)", date, days)
	}
}

// printObligationLine renders the one-line list format:
//
//	obl-7k2m9x  FAFSA          pending    high     2026-03-01 (12d left)  Submit FAFSA
func printObligationLine(o *types.Obligation) {
	stuckMark := " "
	if o.Stuck {
		stuckMark = ui.RenderStuckIcon()
	}
	fmt.Printf("%-12s %-24s %-10s %-9s %s %-22s %s\n",
		o.ID,
		o.Type,
		ui.RenderStatus(o.Status),
		ui.RenderSeverity(o.Severity),
		stuckMark,
		formatDeadline(o.Deadline),
		o.Title)
}

// printBlockers renders a blocker list as an indented tree.
func printBlockers(blockers []types.Blocker) {
	for i, b := range blockers {
		marker := ui.TreeChild
		if i == len(blockers)-1 {
			marker = ui.TreeLast
		}
		fmt.Printf("  %s%s %s [%s] %s\n",
			marker, b.ObligationID, b.Type, ui.RenderStatus(b.Status), b.Title)
	}
}
