// tram is the command-line interface for the go-tram saga library.
//
// Usage:
//
//	tram <command> [flags]
//
// Commands:
//
//	init        Create a tram.yaml configuration
//	schema      Print the saga instance table DDL
//	migrate     Create the saga instance table
//	saga        List and show saga instances
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	tram init orders --driver=postgres --transport=kafka
//	tram migrate
//	tram saga list CreateOrderSaga --active
//	tram saga show CreateOrderSaga 5f0c9a7e-...
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-tram/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
