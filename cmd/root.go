package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "legisync",
	Short: "Synchronize legislative bill records into PostgreSQL",
	Long: `legisync ingests bill-history XML and bill-text HTML from a remote
legislature source (FTP server or HTTP mirror), normalizes the documents,
and persists bill records incrementally and resumably.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
