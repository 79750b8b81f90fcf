package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	enrichOutputDir string
	enrichJSON      bool
)

//nolint:gochecknoglobals // Cobra commands are typically global
var enrichCmd = &cobra.Command{
	Use:   "enrich <trajectory>...",
	Short: "Enrich trajectory files in the foreground",
	Long: `Enrich runs every enabled stage over each trajectory file in turn and
writes the enriched trajectory together with the joined places and POIs.

Examples:
  # Enrich one recording with the default config
  gpxenrich enrich rides/2026-05-01.gpx

  # Write outputs elsewhere and print the run reports as JSON
  gpxenrich enrich --output-dir /tmp/out --json rides/*.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().StringVar(&enrichOutputDir, "output-dir", "", "Override the output directory")
	enrichCmd.Flags().BoolVar(&enrichJSON, "json", false, "Print run reports as JSON")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if enrichOutputDir != "" {
		cfg.Output.Dir = enrichOutputDir
	}

	var opts []engine.Option

	if cfg.Cache.Backend == cache.BackendRedis {
		rdb, err := cfg.Redis.NewClient()
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				logger.WithError(closeErr).Error("Failed to close redis client")
			}
		}()

		opts = append(opts, engine.WithRedis(rdb))
	}

	runner, err := engine.NewRunner(cfg, logger, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports := make([]*engine.Report, 0, len(args))

	for _, input := range args {
		report, err := runner.ProcessFile(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to enrich %s: %w", input, err)
		}

		reports = append(reports, report)
	}

	if enrichJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(reports)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tPOINTS\tSTAGES\tOUTPUT\tDURATION")
	for _, r := range reports {
		points := strconv.Itoa(r.Points)
		if r.Malformed {
			points = "malformed"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Input, points, strings.Join(r.Stages, ","), r.Outputs.Trajectory, r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()

	return nil
}
