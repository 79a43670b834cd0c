package main

import (
	"os"

	"github.com/spf13/cobra"

	"hostel-allocation-backend/internal/db"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		Run: func(_ *cobra.Command, _ []string) {
			cfg, logger := commonRun()

			gormDB, err := db.Open(&cfg.Database, logger)
			if err != nil {
				logger.Error(err.Error(), "component", programName)
				os.Exit(1)
			}
			if err := db.Migrate(gormDB); err != nil {
				logger.Error(err.Error(), "component", programName)
				os.Exit(1)
			}
			if sqlDB, err := gormDB.DB(); err == nil {
				sqlDB.Close()
			}
			logger.Info("database schema is up to date", "component", programName, "driver", cfg.Database.Driver)
		},
	}
}
