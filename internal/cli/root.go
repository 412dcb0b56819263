// Package cli implements the ideascopectl command line client. It
// talks to a running ideascope service over its HTTP API.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "ideascopectl",
	Short: "Client for the ideascope validation service",
	Long: `ideascopectl submits startup ideas to a running ideascope service,
watches validations as source signals arrive, and renders scorecards
and improvement recommendations.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the ideascope service")
	rootCmd.CompletionOptions.HiddenDefaultCmd = false
}
