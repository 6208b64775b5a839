package main

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"journal/api/internal/store"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every journal entry to Meilisearch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.MeiliURL) == "" {
				return errors.New("MEILI_URL is not set")
			}
			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			searchService, closeSearch := newSearch(db, cfg)
			defer closeSearch()

			count, err := searchService.Reindex(cmd.Context(), store.NewPostgresStore(db))
			if err != nil {
				return err
			}
			log.Info().Int("entries", count).Msg("reindex complete")
			return nil
		},
	}
}
