package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"pawnval/internal/platform/postgres"
	"pawnval/internal/valuation/models"
	"pawnval/internal/valuation/store"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <item description...>",
		Short: "Show recorded valuations for an item, newest first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			q, err := models.NormalizeQuery(strings.Join(args, " "))
			if err != nil {
				return err
			}
			db, err := postgres.Open(cmd.Context(), cfg.Postgres)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("history needs PAWNVAL_POSTGRES_DSN")
			}
			defer db.Close()

			records, err := store.NewPostgres(db).Recent(cmd.Context(), q, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultRecentLimit, "maximum records to show")
	return cmd
}
