// Package main provides the inlinesql command-line tool.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/inlinesql/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
