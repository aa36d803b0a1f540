// Command server runs the streaming bridge's HTTP entry point.
package main

import (
	"fmt"
	"os"

	"github.com/streambridge/fsb/cmd/server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
