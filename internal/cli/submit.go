package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ideascope/ideascope/internal/server"
)

var (
	submitWait    bool
	submitTimeout time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit <idea>",
	Short: "Submit a startup idea for validation",
	Long: `Submit a startup idea to the service. All signal sources are queried
concurrently; with --wait the command polls until every source has
finished and then prints the final scorecard.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Wait for the validation to complete")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 2*time.Minute, "How long to wait with --wait")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	idea := strings.TrimSpace(strings.Join(args, " "))

	var resp server.ValidationResponse
	req := server.CreateValidationRequest{Idea: idea}
	if err := apiPost("/v1/validations", req, &resp); err != nil {
		return err
	}

	if !submitWait {
		fmt.Printf("Validation %s started. Track it with:\n", resp.Session.ID)
		fmt.Printf("  ideascopectl report %s\n", resp.Session.ID)
		return nil
	}

	fmt.Printf("Validation %s started, waiting for sources...\n\n", resp.Session.ID)
	final, err := waitForValidation(resp.Session.ID, submitTimeout)
	if err != nil {
		return err
	}
	renderValidation(final)
	return nil
}

func waitForValidation(sessionID string, timeout time.Duration) (server.ValidationResponse, error) {
	deadline := time.Now().Add(timeout)
	for {
		var resp server.ValidationResponse
		if err := apiGet("/v1/validations/"+sessionID, &resp); err != nil {
			return resp, err
		}

		done := true
		for _, res := range resp.Results {
			if !res.Status.Terminal() {
				done = false
				break
			}
		}
		if done {
			return resp, nil
		}
		if time.Now().After(deadline) {
			return resp, fmt.Errorf("validation %s did not complete within %s", sessionID, timeout)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
