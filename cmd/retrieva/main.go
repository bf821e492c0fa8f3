// Package main is the entry point for the retrieva CLI.
//
// Usage:
//
//	retrieva [flags] <command> [subcommand] [args]
//
// Commands:
//
//	upload     - Index a document into a session
//	query      - Ask a question against a session
//	sessions   - List and delete sessions
//	serve      - Run the HTTP server
//	config     - Show the configuration
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/retrieva/go/cmd/retrieva/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
