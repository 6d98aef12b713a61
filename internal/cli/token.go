package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pedidos/api/internal/app"
)

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue access tokens",
	}
	cmd.AddCommand(tokenEmitirCmd())
	return cmd
}

func tokenEmitirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emitir [usuario]",
		Short: "Print a signed access token for an existing usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")

			ctx := cmd.Context()
			cfg, db, st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			u, err := st.GetUsuarioByLogin(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load usuario: %w", err)
			}
			if ttl > 0 {
				cfg.AccessTTL = ttl
			}
			session, err := app.New(cfg, st, st, nil).IssueSession(u)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), session.Token)
			warn(cmd.ErrOrStderr(), "Token for %s (%s) expires at %s", u.Login, u.Papel, session.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to PEDIDOS_ACCESS_TTL_SECONDS)")
	return cmd
}
