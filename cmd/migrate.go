package cmd

import (
	"context"
	"time"

	"hotel-booking/pkg/database"
	"hotel-booking/pkg/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := utils.LoadConfig()
			if err != nil {
				return err
			}

			logger := newLogger(config)
			defer logger.Sync()

			db, err := database.InitDB(config.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			if err := database.Migrate(ctx, db); err != nil {
				return err
			}

			logger.Info("Schema migrated", zap.String("database", config.Database.Name))
			return nil
		},
	}
}
