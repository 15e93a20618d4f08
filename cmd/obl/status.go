package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/guard"
	"github.com/obligolabs/obligo/internal/types"
	"github.com/obligolabs/obligo/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status <id> <target>",
	Short: "Request a status transition",
	Long: `Requests a transition to the target status. The transition only commits
when every rule passes: the lifecycle graph allows the edge, no unverified
prerequisite blocks it (unless overridden), and verification has the
required proof. Rejections explain exactly what stands in the way.`,
	Example: `  obl status obl-7k2m9x submitted
  obl status obl-7k2m9x verified`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		target := types.Status(strings.ToLower(args[1]))
		if !target.IsValid() {
			return fmt.Errorf("invalid status %q (valid: pending, submitted, verified, blocked, failed)", args[1])
		}

		o, err := eng.RequestTransition(cmd.Context(), currentUser(), id, target, actor())
		if err != nil {
			return renderRejection(err)
		}

		if jsonOutput {
			printJSON(o)
			return nil
		}
		fmt.Printf("%s %s is now %s\n", ui.RenderPassIcon(), o.ID, ui.RenderStatus(o.Status))
		return nil
	},
}

// renderRejection turns the guard's typed rejections into actionable
// output; anything else passes through unchanged.
func renderRejection(err error) error {
	var blocked *guard.BlockedError
	if errors.As(err, &blocked) {
		fmt.Printf("%s %s\n", ui.RenderFailIcon(), blocked.Error())
		printBlockers(blocked.Blockers)
		fmt.Println(ui.RenderMuted("Verify the prerequisites first, or record an override with 'obl override add'."))
		return fmt.Errorf("transition rejected")
	}

	var proof *guard.ProofRequiredError
	if errors.As(err, &proof) {
		fmt.Printf("%s %s\n", ui.RenderFailIcon(), proof.Error())
		fmt.Println(ui.RenderMuted("Attach evidence with 'obl proof add' and retry."))
		return fmt.Errorf("transition rejected")
	}

	var esc *guard.EscalationError
	if errors.As(err, &esc) {
		fmt.Printf("%s %s\n", ui.RenderFailIcon(), esc.Error())
		fmt.Println(ui.RenderMuted("At this deadline pressure an unproven claim cannot be accepted."))
		return fmt.Errorf("transition rejected")
	}

	return err
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
