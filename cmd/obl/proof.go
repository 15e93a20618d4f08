package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/types"
	"github.com/obligolabs/obligo/internal/ui"
)

var (
	proofType string
	proofRef  string
)

var proofCmd = &cobra.Command{
	Use:   "proof",
	Short: "Manage the proof ledger",
}

var proofAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Attach verification evidence to an obligation",
	Example: `  obl proof add obl-7k2m9x --type receipt --ref "stripe_ch_3abc"
  obl proof add obl-7k2m9x --type portal_screenshot --ref screenshots/fafsa.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pt := types.ProofType(strings.ToLower(proofType))
		if !pt.IsValid() {
			return fmt.Errorf("invalid proof type %q (valid: receipt, portal_screenshot, file_upload, confirmation_artifact)", proofType)
		}

		p, err := eng.AppendProof(cmd.Context(), currentUser(), args[0], pt, proofRef, actor())
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(p)
			return nil
		}
		fmt.Printf("%s proof #%d (%s) attached to %s\n", ui.RenderPassIcon(), p.ID, p.Type, p.ObligationID)
		return nil
	},
}

var proofListCmd = &cobra.Command{
	Use:   "list <id>",
	Short: "List proofs for an obligation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Scope check before reading the ledger.
		if _, err := eng.Get(cmd.Context(), currentUser(), args[0]); err != nil {
			return err
		}
		proofs, err := store.GetProofs(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(proofs)
			return nil
		}
		if len(proofs) == 0 {
			fmt.Println(ui.RenderMuted("No proofs recorded."))
			return nil
		}
		for _, p := range proofs {
			fmt.Printf("#%d %-22s %s (%s)\n", p.ID, p.Type, p.SourceRef,
				p.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	proofAddCmd.Flags().StringVarP(&proofType, "type", "t", "", "proof type (required)")
	proofAddCmd.Flags().StringVar(&proofRef, "ref", "", "reference to the evidence (URL, file, id)")
	_ = proofAddCmd.MarkFlagRequired("type")
	proofCmd.AddCommand(proofAddCmd)
	proofCmd.AddCommand(proofListCmd)
	rootCmd.AddCommand(proofCmd)
}
