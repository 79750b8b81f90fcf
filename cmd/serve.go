package cmd

import (
	"context"

	"github.com/ethpandaops/gpxenrich/pkg/server"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gpxenrich worker, scheduler and API",
	Long: `serve processes enrichment tasks from the Redis queue. When enabled in the
config it also scans the inbox on a schedule and serves the HTTP API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded")

	ctx := context.Background()

	srv, err := server.NewServer(ctx, logger, cfg)
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}
