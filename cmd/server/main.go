/*
Package main is the entry point for the swstarter backend.

Usage:

	swstarter [command] [--config config.yml]

Available Commands:

	serve       Run the HTTP API, queue workers and maintenance jobs (default)
	stats       Print the latest computed query statistics
	queue       Inspect and maintain the job lanes
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/swstarter/core/internal/cli"
)

// Set via ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := cli.NewRootCmd(fmt.Sprintf("%s (commit: %s)", version, commit))
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
