package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/ui"
)

var depsCmd = &cobra.Command{
	Use:   "deps [id]",
	Short: "Show dependency state",
	Long: `With an ID, shows the dependency state for one obligation. Without, shows
every obligation of the user with its blockers and overridden dependencies.
State is derived fresh from the ledgers on every call.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user := currentUser()

		if len(args) == 1 {
			state, err := eng.EvaluateObligation(ctx, user, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(state)
				return nil
			}
			printDepState(state.ObligationID, state.Title, state.IsBlocked, len(state.Blockers), len(state.OverriddenDeps))
			printBlockers(state.Blockers)
			for _, od := range state.OverriddenDeps {
				fmt.Printf("  %s%s %s [%s] %s\n",
					ui.TreeLast, od.ObligationID, od.Type,
					ui.RenderMuted("overridden"), od.Title)
			}
			return nil
		}

		states, err := eng.EvaluateDependencies(ctx, user)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(states)
			return nil
		}
		for _, state := range states {
			printDepState(state.ObligationID, state.Title, state.IsBlocked, len(state.Blockers), len(state.OverriddenDeps))
			printBlockers(state.Blockers)
		}
		return nil
	},
}

func printDepState(id, title string, blocked bool, blockers, overridden int) {
	label := ui.PassStyle.Render("clear")
	if blocked {
		label = ui.WarnStyle.Render(fmt.Sprintf("blocked (%d)", blockers))
	}
	line := fmt.Sprintf("%-12s %-10s %s", id, label, title)
	if overridden > 0 {
		line += ui.RenderMuted(fmt.Sprintf("  [%d overridden]", overridden))
	}
	fmt.Println(line)
}

func init() {
	rootCmd.AddCommand(depsCmd)
}
