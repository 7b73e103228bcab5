package cli

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func NewMigrateCmd(migrate func(ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the transaction service schema migrations",
		Long:  `Apply pending migrations to the database named by DATABASE_URL.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			pterm.Success.WithWriter(cmd.OutOrStdout()).Println("schema is up to date")
			return nil
		},
	}
}
