package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <session-id> <source>",
	Short: "Re-fetch a single source for a validation",
	Long: `Re-fetch one signal source for an existing validation. The source may
be a canonical name (search, trends, reddit, youtube, twitter, tiktok,
commerce) or an alias like "forums" or "shopping".`,
	Args: cobra.ExactArgs(2),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	sessionID, source := args[0], args[1]

	var resp map[string]string
	path := fmt.Sprintf("/v1/validations/%s/sources/%s/refresh", sessionID, source)
	if err := apiPost(path, nil, &resp); err != nil {
		return err
	}

	fmt.Printf("Refreshing %s for validation %s. Check progress with:\n", resp["source"], sessionID)
	fmt.Printf("  ideascopectl report %s\n", sessionID)
	return nil
}
