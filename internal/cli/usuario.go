package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pedidos/api/internal/authpw"
	"pedidos/api/internal/rbac"
)

func UsuarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usuario",
		Short: "Manage usuarios",
	}
	cmd.AddCommand(usuarioCriarCmd(), usuarioPapelCmd())
	return cmd
}

func usuarioCriarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "criar [usuario]",
		Short: "Create a usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nome, _ := cmd.Flags().GetString("nome")
			senha, _ := cmd.Flags().GetString("senha")
			papel, _ := cmd.Flags().GetString("papel")
			papel = strings.ToLower(strings.TrimSpace(papel))
			if !rbac.Valid(papel) {
				return fmt.Errorf("invalid papel: %s\nValid papeis: leitor, operador, admin", papel)
			}
			if strings.TrimSpace(nome) == "" {
				nome = args[0]
			}

			ctx := cmd.Context()
			_, db, st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			u, err := authpw.NewService(st).SignUp(ctx, authpw.SignUpRequest{
				Nome:    nome,
				Usuario: args[0],
				Senha:   senha,
				Papel:   papel,
			})
			if err != nil {
				return fmt.Errorf("failed to create usuario: %w", err)
			}
			success(cmd.OutOrStdout(), "Created usuario %s (id %d, papel %s)", u.Login, u.ID, u.Papel)
			return nil
		},
	}
	cmd.Flags().String("nome", "", "Display name (defaults to the login)")
	cmd.Flags().String("senha", "", "Password")
	cmd.Flags().String("papel", string(rbac.RoleOperador), "Papel: leitor, operador or admin")
	_ = cmd.MarkFlagRequired("senha")
	return cmd
}

func usuarioPapelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "papel [usuario] [papel]",
		Short: "Change the papel of a usuario",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			papel := strings.ToLower(strings.TrimSpace(args[1]))
			if !rbac.Valid(papel) {
				return fmt.Errorf("invalid papel: %s\nValid papeis: leitor, operador, admin", args[1])
			}

			ctx := cmd.Context()
			_, db, st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := st.SetPapel(ctx, args[0], papel); err != nil {
				return fmt.Errorf("failed to set papel: %w", err)
			}
			success(cmd.OutOrStdout(), "Usuario %s is now %s", args[0], papel)
			return nil
		},
	}
}
