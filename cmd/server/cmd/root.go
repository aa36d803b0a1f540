// Package cmd implements the server's CLI surface with github.com/spf13/cobra,
// matching the sibling bot's entrypoint library.
package cmd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Streaming bridge: HTTP range-request streaming over a chat platform's file storage",
}

// Execute runs the root command, defaulting to serve when no subcommand is
// given.
func Execute() error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	return rootCmd.Execute()
}

func init() {
	rootCmd.RunE = serveCmd.RunE
}
