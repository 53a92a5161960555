package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqliteRepo "github.com/rustaceans-org/rustaceans-sync/internal/repository/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the directory database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		// New applies pending migrations before returning.
		db, err := sqliteRepo.New(cmd.Context(), cfg.DBPath, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.DBPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
