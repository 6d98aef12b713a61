package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pedidos/api/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pedidosctl",
		Short: "Operator tools for the pedidos API",
		Long: `pedidosctl runs maintenance tasks against the pedidos database:
migrations, usuario management, token issuing and search reindexing.
It reads the same environment (and .env file) as the API.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.UsuarioCmd())
	rootCmd.AddCommand(cli.TokenCmd())
	rootCmd.AddCommand(cli.SearchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
