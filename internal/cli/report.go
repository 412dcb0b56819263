package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ideascope/ideascope/internal/models"
	"github.com/ideascope/ideascope/internal/server"
)

var reportImprovements bool

var reportCmd = &cobra.Command{
	Use:   "report [session-id]",
	Short: "Show the scorecard for a validation",
	Long: `Show the per-source status and factor breakdown for a validation.
With no argument the most recently completed validation is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().BoolVarP(&reportImprovements, "improvements", "i", false, "Also list improvement recommendations")
}

func runReport(cmd *cobra.Command, args []string) error {
	sessionID := ""
	if len(args) == 1 && args[0] != "latest" {
		sessionID = args[0]
	}

	if sessionID == "" {
		var latest server.LatestResponse
		if err := apiGet("/v1/validations/latest", &latest); err != nil {
			return err
		}
		sessionID = latest.SessionID
	}

	var resp server.ValidationResponse
	if err := apiGet("/v1/validations/"+sessionID, &resp); err != nil {
		return err
	}
	renderValidation(resp)

	if !reportImprovements {
		return nil
	}

	var improvements []models.Improvement
	if err := apiGet("/v1/validations/"+sessionID+"/improvements", &improvements); err != nil {
		return err
	}
	fmt.Println()
	renderImprovements(improvements)
	return nil
}
