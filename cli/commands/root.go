// Package commands implements the subcommands of the behave CLI.
package commands

import (
	"fmt"

	"github.com/AshkanYarmoradi/go-behave/cli/styles"
	"github.com/AshkanYarmoradi/go-behave/cli/ui"
	"github.com/spf13/cobra"
)

// Build metadata, overwritten through -ldflags at release time.
var (
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "none"
)

// NewRootCommand assembles the behave command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "behave",
		Short: "Aggregate behavior engine for Go",
		Long: ui.SimpleBanner() + `

Behave is an aggregate behavior engine for event-sourced Go applications.
Commands are decided by ordered rules, recorded as events, and replayed
into state through pure folds.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("behave init") + `           Start a new project
  ` + styles.Code.Render("behave generate") + `       Scaffold aggregates and events
  ` + styles.Code.Render("behave migrate up") + `     Apply journal migrations
  ` + styles.Code.Render("behave diagnose") + `       Audit the local setup

` + styles.Title.Render("Documentation:") + `

  https://github.com/AshkanYarmoradi/go-behave`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if off, _ := cmd.Flags().GetBool("no-color"); off {
				styles.DisableColors()
			}
		},
	}

	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	for _, sub := range []*cobra.Command{
		NewInitCommand(),
		NewGenerateCommand(),
		NewMigrateCommand(),
		NewStreamCommand(),
		NewDiagnoseCommand(),
		NewSchemaCommand(),
		NewVersionCommand(Version, Commit, BuildDate),
	} {
		root.AddCommand(sub)
	}

	return root
}

// Execute runs the CLI, printing any terminal error in the house style.
func Execute() error {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Println(styles.FormatError(err.Error()))
		return err
	}
	return nil
}
