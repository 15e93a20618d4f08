package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/ui"
)

var overrideReason string

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage the override ledger",
}

var overrideAddCmd = &cobra.Command{
	Use:   "add <id> <dependency-id>",
	Short: "Override one blocker for one obligation",
	Long: `Records a decision to ignore a specific blocker. The override removes the
hard block only; the prerequisite stays unverified and keeps feeding the
risk signal. Overrides are append-only and every record is kept.`,
	Example: `  obl override add obl-7k2m9x obl-9ydqnn --reason "fee waived by the financial aid office"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if overrideReason == "" {
			return fmt.Errorf("--reason is required; overrides without a reason are not auditable")
		}

		ov, err := eng.RecordOverride(cmd.Context(), currentUser(), args[0], args[1], overrideReason, actor())
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(ov)
			return nil
		}
		fmt.Printf("%s override #%d recorded: %s no longer blocks %s\n",
			ui.RenderPassIcon(), ov.ID, ov.DependencyID, ov.ObligationID)
		return nil
	},
}

var overrideListCmd = &cobra.Command{
	Use:   "list [id]",
	Short: "List overrides for an obligation, or all for the user",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user := currentUser()

		overrides, err := store.GetOverridesForUser(ctx, user)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			if _, err := eng.Get(ctx, user, args[0]); err != nil {
				return err
			}
			overrides, err = store.GetOverrides(ctx, args[0])
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			printJSON(overrides)
			return nil
		}
		if len(overrides) == 0 {
			fmt.Println(ui.RenderMuted("No overrides recorded."))
			return nil
		}
		for _, ov := range overrides {
			fmt.Printf("#%d %s ignores %s: %s (%s)\n",
				ov.ID, ov.ObligationID, ov.DependencyID, ov.Reason,
				ov.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	overrideAddCmd.Flags().StringVarP(&overrideReason, "reason", "r", "", "why this blocker is being ignored (required)")
	overrideCmd.AddCommand(overrideAddCmd)
	overrideCmd.AddCommand(overrideListCmd)
	rootCmd.AddCommand(overrideCmd)
}
