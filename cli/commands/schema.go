package commands

import (
	"fmt"
	"os"

	"github.com/AshkanYarmoradi/go-tram/cli/styles"
	"github.com/spf13/cobra"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the saga instance table schema",
		Long: `Generate the PostgreSQL DDL for the saga instance table, plus the
outbox and received message tables when tram.yaml names them.
No database connection is needed.

Examples:
  tram schema print
  tram schema generate -o saga_instance.sql`,
	}

	cmd.AddCommand(newSchemaGenerateCommand())
	cmd.AddCommand(newSchemaPrintCommand())

	return cmd
}

func newSchemaGenerateCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the schema SQL to a file or stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}
			schema := schemaSQL(cfg)

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), schema)
				return nil
			}
			if err := os.WriteFile(output, []byte(schema), 0644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styles.FormatSuccess("Schema written to "+output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newSchemaPrintCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Print the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, styles.Title.Render(styles.IconDatabase+" Saga Instance Schema"))
			fmt.Fprintln(out, schemaSQL(cfg))
			return nil
		},
	}
}
