package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/engine"
	"github.com/obligolabs/obligo/internal/timeparse"
	"github.com/obligolabs/obligo/internal/types"
	"github.com/obligolabs/obligo/internal/ui"
)

var (
	declareType          string
	declareTitle         string
	declareNotes         string
	declareInstitution   string
	declareDeadline      string
	declareSource        string
	declareSourceRef     string
	declareProofRequired bool
	declareNoProof       bool
	declareSupersedes    string
)

var declareCmd = &cobra.Command{
	Use:   "declare",
	Short: "Declare a new obligation",
	Long: `Declares a new obligation for the user. Dependency edges implied by the
obligation type are materialized automatically, and the obligation starts
blocked when unverified prerequisites already exist.

Deadlines accept compact durations (+2w), natural language ("next friday"),
or absolute dates (2026-03-01).`,
	Example: `  obl declare -u casey -t FAFSA --title "Submit FAFSA" --deadline 2026-03-01
  obl declare -u casey -t HOUSING_DEPOSIT --title "Housing deposit" --institution "State U" --deadline +2w
  obl declare -u casey -t ENROLLMENT_DEPOSIT --title "Redo deposit" --supersedes obl-9ydqnn`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if declareTitle == "" {
			return fmt.Errorf("--title is required")
		}
		obligationType := types.ObligationType(strings.ToUpper(declareType))
		if !obligationType.IsValid() {
			return fmt.Errorf("unknown obligation type %q (valid: %s)",
				declareType, joinTypes())
		}

		var deadline *time.Time
		if declareDeadline != "" {
			t, err := timeparse.Parse(declareDeadline, time.Now())
			if err != nil {
				return err
			}
			deadline = &t
		}

		req := engine.DeclareRequest{
			UserID:      currentUser(),
			Type:        obligationType,
			Title:       declareTitle,
			Notes:       declareNotes,
			Institution: declareInstitution,
			Deadline:    deadline,
			Source:      declareSource,
			SourceRef:   declareSourceRef,
			Supersedes:  declareSupersedes,
			Actor:       actor(),
		}
		if cmd.Flags().Changed("proof-required") {
			req.ProofRequired = &declareProofRequired
		}
		if declareNoProof {
			f := false
			req.ProofRequired = &f
		}

		o, err := eng.Declare(cmd.Context(), req)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(o)
			return nil
		}
		fmt.Printf("%s declared %s [%s]\n", ui.RenderPassIcon(), o.ID, ui.RenderStatus(o.Status))
		if o.Status == types.StatusBlocked {
			state, err := eng.EvaluateObligation(cmd.Context(), o.UserID, o.ID)
			if err == nil && len(state.Blockers) > 0 {
				fmt.Println("Blocked by:")
				printBlockers(state.Blockers)
			}
		}
		return nil
	},
}

func joinTypes() string {
	names := make([]string, len(types.AllObligationTypes))
	for i, t := range types.AllObligationTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func init() {
	declareCmd.Flags().StringVarP(&declareType, "type", "t", "", "obligation type (required)")
	declareCmd.Flags().StringVar(&declareTitle, "title", "", "short title (required)")
	declareCmd.Flags().StringVar(&declareNotes, "notes", "", "free-form notes")
	declareCmd.Flags().StringVar(&declareInstitution, "institution", "", "institution scope")
	declareCmd.Flags().StringVar(&declareDeadline, "deadline", "", "deadline (+2w, \"next friday\", 2026-03-01)")
	declareCmd.Flags().StringVar(&declareSource, "source", "", "provenance: manual, email_scan, portal_paste, document")
	declareCmd.Flags().StringVar(&declareSourceRef, "source-ref", "", "provenance reference (message id, URL)")
	declareCmd.Flags().BoolVar(&declareProofRequired, "proof-required", false, "require proof before verification")
	declareCmd.Flags().BoolVar(&declareNoProof, "no-proof", false, "waive the per-type proof requirement")
	declareCmd.Flags().StringVar(&declareSupersedes, "supersedes", "", "failed obligation this one replaces")
	_ = declareCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(declareCmd)
}
