package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var enqueueCmd = &cobra.Command{
	Use:   "enqueue <trajectory>...",
	Short: "Queue trajectory files for a running worker",
	Long: `Enqueue submits trajectory files to the Redis queue consumed by
"gpxenrich serve". A file that is already pending or running is not queued
twice.

Examples:
  gpxenrich enqueue /data/inbox/ride.gpx /data/inbox/walk.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}

	opt, err := cfg.Redis.AsynqOptions()
	if err != nil {
		return err
	}

	queue := tasks.NewQueueManager(opt, cfg.Redis.PrefixQueue(cfg.Worker.Queue))
	defer func() {
		if closeErr := queue.Close(); closeErr != nil {
			logger.WithError(closeErr).Error("Failed to close task queue")
		}
	}()

	ctx := context.Background()

	for _, input := range args {
		// the worker may run in another directory
		abs, err := filepath.Abs(input)
		if err != nil {
			return err
		}

		enqueued, err := queue.EnqueueTrack(ctx, tasks.TrackPayload{
			Input:      abs,
			Trigger:    tasks.TriggerManual,
			EnqueuedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", input, err)
		}

		status := "queued"
		if !enqueued {
			status = "already queued"
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", abs, status)
	}

	return nil
}
