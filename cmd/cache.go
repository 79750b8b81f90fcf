package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Command flags need to be global for cobra
var (
	lookupKind      string
	lookupLat       float64
	lookupLon       float64
	lookupRadius    float64
	lookupProvider  string
	lookupTolerance float64
)

// cacheCmd represents the cache command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the tolerance cache",
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored entry counts per kind",
	RunE:  runCacheStats,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var cacheLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Look up the cached result nearest to a position",
	Long: `Lookup runs the same tolerance lookup the enrichment stages use and prints
the matching entry as JSON.

Examples:
  gpxenrich cache lookup --kind geocoding --provider nominatim --lat 48.137 --lon 11.575
  gpxenrich cache lookup --kind surface --provider overpass --radius 20 --lat 48.137 --lon 11.575 --tolerance 0.02`,
	RunE: runCacheLookup,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheLookupCmd)

	cacheLookupCmd.Flags().StringVar(&lookupKind, "kind", string(cache.KindGeocoding), "Cache kind (geocoding, surface)")
	cacheLookupCmd.Flags().Float64Var(&lookupLat, "lat", 0, "Latitude in degrees")
	cacheLookupCmd.Flags().Float64Var(&lookupLon, "lon", 0, "Longitude in degrees")
	cacheLookupCmd.Flags().Float64Var(&lookupRadius, "radius", 0, "Query radius in metres (surface only)")
	cacheLookupCmd.Flags().StringVar(&lookupProvider, "provider", "", "Provider that produced the entry")
	cacheLookupCmd.Flags().Float64Var(&lookupTolerance, "tolerance", 0.05, "Tolerance in kilometres")

	_ = cacheLookupCmd.MarkFlagRequired("lat")
	_ = cacheLookupCmd.MarkFlagRequired("lon")
	_ = cacheLookupCmd.MarkFlagRequired("provider")
}

// openCache opens the configured cache; the returned func closes it and
// any redis client it needed
func openCache(ctx context.Context, cmd *cobra.Command) (*cache.Cache, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		closers []func() error
		rdb     *redis.Client
	)

	if cfg.Cache.Backend == cache.BackendRedis {
		if rdb, err = cfg.Redis.NewClient(); err != nil {
			return nil, nil, err
		}

		closers = append(closers, rdb.Close)
	}

	c, err := cache.Open(ctx, &cfg.Cache, rdb, logger)
	if err != nil {
		for _, closeFn := range closers {
			_ = closeFn()
		}

		return nil, nil, err
	}

	closers = append([]func() error{c.Close}, closers...)

	return c, func() {
		for _, closeFn := range closers {
			if closeErr := closeFn(); closeErr != nil {
				logger.WithError(closeErr).Error("Failed to close cache")
			}
		}
	}, nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := context.Background()

	c, closeFn, err := openCache(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	stats := c.Statistics(ctx)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "BACKEND\t%s\n", stats.Backend)
	for _, kind := range cache.Kinds() {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", kind, stats.Entries[kind])
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", stats.EntryCount)
	_ = w.Flush()

	return nil
}

func runCacheLookup(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	req := cache.LookupRequest{
		Kind:        cache.Kind(lookupKind),
		Lat:         lookupLat,
		Lon:         lookupLon,
		RadiusM:     lookupRadius,
		Provider:    lookupProvider,
		ToleranceKm: lookupTolerance,
	}

	if err := req.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	c, closeFn, err := openCache(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	entry, ok := c.Lookup(ctx, req)
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "miss")
		return nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(entry)
}
