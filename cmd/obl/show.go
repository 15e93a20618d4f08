package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/types"
	"github.com/obligolabs/obligo/internal/ui"
)

var showEvents int

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one obligation in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user := currentUser()
		id := args[0]

		o, err := eng.Get(ctx, user, id)
		if err != nil {
			return err
		}
		state, err := eng.EvaluateObligation(ctx, user, id)
		if err != nil {
			return err
		}
		proofs, err := store.GetProofs(ctx, id)
		if err != nil {
			return err
		}
		overrides, err := store.GetOverrides(ctx, id)
		if err != nil {
			return err
		}
		events, err := store.GetEvents(ctx, id, showEvents)
		if err != nil {
			return err
		}

		if jsonOutput {
			o.Proofs = proofs
			o.Overrides = overrides
			printJSON(struct {
				Obligation *types.Obligation     `json:"obligation"`
				DepState   types.DependencyState `json:"dependency_state"`
				Events     []*types.Event        `json:"events"`
			}{o, state, events})
			return nil
		}

		fmt.Printf("%s  %s\n", ui.RenderAccent(o.ID), o.Title)
		fmt.Println(ui.RenderSeparator())
		fmt.Printf("Type:        %s\n", o.Type)
		fmt.Printf("Status:      %s\n", ui.RenderStatus(o.Status))
		fmt.Printf("Severity:    %s (%s)\n", ui.RenderSeverity(o.Severity), o.SeverityReason)
		fmt.Printf("Deadline:    %s\n", formatDeadline(o.Deadline))
		if o.Institution != "" {
			fmt.Printf("Institution: %s\n", o.Institution)
		}
		fmt.Printf("Proof req:   %v\n", o.ProofRequired)
		if o.Stuck {
			fmt.Printf("Stuck:       %s %s\n", ui.RenderStuckIcon(), o.StuckReason)
		}
		if o.Notes != "" {
			fmt.Printf("Notes:       %s\n", o.Notes)
		}

		if len(state.Blockers) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("blocked by"))
			printBlockers(state.Blockers)
		}
		if len(state.OverriddenDeps) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("overridden dependencies"))
			for _, od := range state.OverriddenDeps {
				fmt.Printf("  %s%s %s [%s] overridden %s\n",
					ui.TreeLast, od.ObligationID, od.Type,
					ui.RenderStatus(od.Status),
					od.OverriddenAt.Format("2006-01-02"))
			}
		}

		if len(proofs) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("proofs"))
			for _, p := range proofs {
				fmt.Printf("  #%d %s %s (%s)\n", p.ID, p.Type, p.SourceRef,
					p.CreatedAt.Format("2006-01-02 15:04"))
			}
		}
		if len(overrides) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("overrides"))
			for _, ov := range overrides {
				fmt.Printf("  #%d ignores %s: %s (%s)\n", ov.ID, ov.DependencyID, ov.Reason,
					ov.CreatedAt.Format("2006-01-02 15:04"))
			}
		}
		if len(events) > 0 {
			fmt.Println()
			fmt.Println(ui.RenderCategory("history"))
			for _, e := range events {
				line := fmt.Sprintf("  %s %s", e.CreatedAt.Format("2006-01-02 15:04"), e.EventType)
				if e.OldValue != nil && e.NewValue != nil {
					line += fmt.Sprintf(" %s -> %s", *e.OldValue, *e.NewValue)
				} else if e.NewValue != nil {
					line += " " + *e.NewValue
				}
				if e.Actor != "" {
					line += ui.RenderMuted(" by " + e.Actor)
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().IntVar(&showEvents, "events", 10, "number of history entries to show")
	rootCmd.AddCommand(showCmd)
}
