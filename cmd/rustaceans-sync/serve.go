package main

import (
	"github.com/spf13/cobra"

	"github.com/rustaceans-org/rustaceans-sync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		return srv.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
