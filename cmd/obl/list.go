package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/types"
	"github.com/obligolabs/obligo/internal/ui"
)

var (
	listStatus      string
	listType        string
	listInstitution string
	listLimit       int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List obligations",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.ObligationFilter{
			UserID: currentUser(),
			Limit:  listLimit,
		}
		if listStatus != "" {
			s := types.Status(strings.ToLower(listStatus))
			if !s.IsValid() {
				return fmt.Errorf("invalid status %q", listStatus)
			}
			filter.Status = &s
		}
		if listType != "" {
			t := types.ObligationType(strings.ToUpper(listType))
			if !t.IsValid() {
				return fmt.Errorf("invalid type %q", listType)
			}
			filter.Type = &t
		}
		if cmd.Flags().Changed("institution") {
			filter.Institution = &listInstitution
		}

		obligations, err := eng.List(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(obligations)
			return nil
		}
		if len(obligations) == 0 {
			fmt.Println(ui.RenderMuted("No obligations found."))
			return nil
		}
		for _, o := range obligations {
			printObligationLine(o)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "filter by obligation type")
	listCmd.Flags().StringVar(&listInstitution, "institution", "", "filter by institution scope")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "limit result count")
	rootCmd.AddCommand(listCmd)
}
