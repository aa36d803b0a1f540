package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	RunE: func(c *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}
