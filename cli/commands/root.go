// Package commands provides the CLI command implementations for tram.
package commands

import (
	"fmt"
	"os"

	"github.com/AshkanYarmoradi/go-tram/cli/styles"
	"github.com/AshkanYarmoradi/go-tram/cli/ui"
	"github.com/spf13/cobra"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// NewRootCommand creates the root command for the tram CLI
func NewRootCommand() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:   "tram",
		Short: "Saga orchestration toolkit for Go",
		Long: ui.SimpleBanner() + `

Tram coordinates multi-service transactions with orchestrated sagas.
The CLI manages the saga instance table and inspects running sagas.

` + styles.Title.Render("Quick Start:") + `

  ` + styles.Code.Render("tram init") + `              Create tram.yaml
  ` + styles.Code.Render("tram migrate") + `           Create the saga instance table
  ` + styles.Code.Render("tram saga list <type>") + `  List saga instances
  ` + styles.Code.Render("tram diagnose") + `          Check your setup`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				styles.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewSchemaCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewSagaCommand())
	rootCmd.AddCommand(NewDiagnoseCommand())
	rootCmd.AddCommand(NewVersionCommand(Version, Commit, BuildDate))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.FormatError(err.Error()))
		return err
	}

	return nil
}
