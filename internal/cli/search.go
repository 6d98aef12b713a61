package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pedidos/api/internal/search"
	"pedidos/api/internal/store"
)

func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Maintain the Meilisearch index",
	}
	cmd.AddCommand(searchReindexCmd())
	return cmd
}

func searchReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Push every stored pedido to Meilisearch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, _ := cmd.Flags().GetInt("batch")

			ctx := cmd.Context()
			cfg, db, st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if strings.TrimSpace(cfg.MeiliURL) == "" {
				return errors.New("MEILI_URL is not set")
			}
			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
			svc := search.NewService(meili, search.NewSQLSearch(db))
			defer svc.Close()
			if !svc.Indexing() {
				return fmt.Errorf("meilisearch at %s is unavailable", cfg.MeiliURL)
			}

			total := 0
			err = st.Pedidos.Each(ctx, batch, func(items []store.OwnedAggregate) error {
				records := make([]search.PedidoRecord, 0, len(items))
				for _, item := range items {
					records = append(records, search.NewRecord(item.OwnerID, item.Aggregate))
				}
				n, err := svc.ReindexAll(records)
				total += n
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to reindex after %d pedidos: %w", total, err)
			}
			success(cmd.OutOrStdout(), "Indexed %d pedidos", total)
			return nil
		},
	}
	cmd.Flags().Int("batch", 500, "Pedidos per indexing batch")
	return cmd
}
