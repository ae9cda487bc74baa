// behave is the command-line interface for the go-behave aggregate behavior
// engine.
//
// Usage:
//
//	behave <command> [flags]
//
// Commands:
//
//	init        Initialize a new behave project
//	generate    Scaffold aggregates, events, and commands
//	migrate     Manage journal schema migrations
//	stream      Inspect journal streams
//	schema      Manage journal schema
//	diagnose    Check your behave setup
//	version     Show version and build details
//
// Examples:
//
//	behave init my-project
//	behave generate aggregate Order --events Created,ItemAdded,Shipped
//	behave migrate up
//	behave stream events Order-1001
//
// Run "behave <command> --help" for the full flag reference.
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-behave/cli/commands"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver for database/sql
)

// Build metadata, set with -ldflags -X at release time.
var (
	version = "dev"
	date    = "unknown"
	commit  = "none"
)

func main() {
	commands.Version, commands.Commit, commands.BuildDate = version, commit, date

	if commands.Execute() != nil {
		os.Exit(1)
	}
}
