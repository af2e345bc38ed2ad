package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-service-shell/internal/repo"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup()
		if err != nil {
			printError("configuration", err)
			return err
		}
		defer closer.Close()

		db, err := repo.Open(cfg)
		if err != nil {
			log.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("open database")
			return err
		}
		if err := repo.AutoMigrate(db); err != nil {
			log.Error().Err(err).Msg("migrate")
			return err
		}
		log.Info().Str("driver", cfg.Database.Driver).Msg("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
