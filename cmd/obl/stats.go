package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/types"
	"github.com/obligolabs/obligo/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate counts for the user",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := eng.Statistics(cmd.Context(), currentUser())
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(stats)
			return nil
		}

		fmt.Println(ui.RenderCategory("obligations"))
		fmt.Printf("  total:     %d\n", stats.Total)
		fmt.Printf("  pending:   %d\n", stats.Pending)
		fmt.Printf("  submitted: %d\n", stats.Submitted)
		fmt.Printf("  verified:  %s\n", ui.PassStyle.Render(fmt.Sprintf("%d", stats.Verified)))
		fmt.Printf("  blocked:   %s\n", ui.WarnStyle.Render(fmt.Sprintf("%d", stats.Blocked)))
		fmt.Printf("  failed:    %s\n", ui.FailStyle.Render(fmt.Sprintf("%d", stats.Failed)))
		fmt.Printf("  stuck:     %d\n", stats.Stuck)

		fmt.Println()
		fmt.Println(ui.RenderCategory("severity"))
		for _, sev := range []types.Severity{
			types.SeverityFailed, types.SeverityCritical, types.SeverityHigh,
			types.SeverityElevated, types.SeverityNormal,
		} {
			if n := stats.SeverityCounts[sev]; n > 0 {
				fmt.Printf("  %-9s %d\n", ui.RenderSeverity(sev)+":", n)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
