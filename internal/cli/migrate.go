package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pedidos/api/internal/store"
)

func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(ctx, db); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			success(cmd.OutOrStdout(), "Migrations applied (%s)", store.DialectOf(db))
			return nil
		},
	}
}
