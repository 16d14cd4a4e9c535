package commands

import (
	"fmt"
	"strings"

	"github.com/AshkanYarmoradi/go-tram/cli/config"
	"github.com/AshkanYarmoradi/go-tram/cli/styles"
	"github.com/AshkanYarmoradi/go-tram/cli/ui"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the saga instance table",
		Long: `Create the saga instance table in the configured PostgreSQL database,
together with the outbox and received message tables when tram.yaml names them.
The statements are idempotent, so running migrate twice is safe.

Examples:
  tram migrate            # Create schema, tables and indexes
  tram migrate --dry-run  # Print the statements instead
  tram migrate status     # Check which tables exist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Repository.Driver == config.DriverMemory {
				fmt.Fprintln(out, styles.FormatInfo("Memory repository needs no migration"))
				return nil
			}
			if dryRun {
				fmt.Fprint(out, schemaSQL(cfg))
				return nil
			}

			repo, err := newPostgresRepository(cfg)
			if err != nil {
				return err
			}
			defer repo.DB().Close()

			ctx := cmd.Context()
			tables := postgresTables(cfg, repo.DB())
			return ui.Spin(out, "Creating tables...", func() (string, error) {
				names := make([]string, 0, len(tables))
				for _, t := range tables {
					if err := t.Table.Initialize(ctx); err != nil {
						return "Migration failed on " + t.Name, err
					}
					names = append(names, t.Name)
				}
				return "Ready: " + strings.Join(names, ", "), nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the SQL without executing it")
	cmd.AddCommand(newMigrateStatusCommand())

	return cmd
}

func newMigrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which tram tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Repository.Driver == config.DriverMemory {
				fmt.Fprintln(out, styles.FormatInfo("Memory repository needs no migration"))
				return nil
			}

			repo, err := newPostgresRepository(cfg)
			if err != nil {
				return err
			}
			defer repo.DB().Close()

			table := ui.NewTable("Table", "Status")
			for _, t := range postgresTables(cfg, repo.DB()) {
				exists, err := t.Table.TableExists(cmd.Context())
				if err != nil {
					return err
				}
				status := "pending"
				if exists {
					status = "applied"
				}
				table.AddRow(t.Name, ui.StatusBadge(status))
			}
			fmt.Fprintln(out, table.Render())
			return nil
		},
	}
}
