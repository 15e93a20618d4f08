package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/ui"
)

var stuckStaleDays int

var stuckCmd = &cobra.Command{
	Use:   "stuck",
	Short: "Detect stuck obligations and explain why",
	Long: `Sweeps the user's obligations for stuck state: passed deadlines, unmet or
overridden dependencies, missing proof, pending external verification, and
dependency deadlocks. Results are cached onto the rows for display, and
obligations whose deadline passed unresolved are auto-failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("stale-days") {
			eng.Detector().SetStaleDays(stuckStaleDays)
		}

		infos, err := eng.DetectStuck(cmd.Context(), currentUser(), actor())
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(infos)
			return nil
		}

		stuckCount := 0
		sort.SliceStable(infos, func(i, j int) bool {
			return infos[i].Severity.Rank() > infos[j].Severity.Rank()
		})
		for _, info := range infos {
			if !info.Stuck {
				continue
			}
			stuckCount++
			fmt.Printf("%s %-12s %-10s %-9s %s\n",
				ui.RenderStuckIcon(), info.ObligationID,
				ui.RenderStatus(info.Status),
				ui.RenderSeverity(info.Severity),
				info.Title)
			fmt.Printf("  %sreason: %s (%d days in status)\n", ui.TreeIndent, info.Reason, info.DaysStale)
			if info.IsDeadlocked {
				fmt.Printf("  %s%s\n", ui.TreeIndent, ui.FailStyle.Render("deadlocked: this chain can never verify without an override"))
			}
			for i, link := range info.Chain {
				marker := ui.TreeChild
				if i == len(info.Chain)-1 {
					marker = ui.TreeLast
				}
				cycle := ""
				if link.IsCycleBack {
					cycle = ui.FailStyle.Render(" (cycle)")
				}
				fmt.Printf("  %s%s [%s] %s%s\n", marker, link.ObligationID,
					ui.RenderStatus(link.Status), link.Title, cycle)
			}
		}
		if stuckCount == 0 {
			fmt.Printf("%s nothing is stuck\n", ui.RenderPassIcon())
		}
		return nil
	},
}

func init() {
	stuckCmd.Flags().IntVar(&stuckStaleDays, "stale-days", 5, "days in the same status before slow reasons count as stuck")
	rootCmd.AddCommand(stuckCmd)
}
