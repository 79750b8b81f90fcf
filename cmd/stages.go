package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ethpandaops/gpxenrich/pkg/engine"
	"github.com/spf13/cobra"
)

// stagesCmd represents the stages command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Inspect the enabled enrichment stages",
}

//nolint:gochecknoglobals // Cobra commands are typically global
var stagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled stages in execution order",
	RunE:  runStagesList,
}

//nolint:gochecknoglobals // Cobra commands are typically global
var stagesDAGCmd = &cobra.Command{
	Use:   "dag",
	Short: "Visualize stage dependencies",
	RunE:  runStagesDAG,
}

func init() {
	rootCmd.AddCommand(stagesCmd)
	stagesCmd.AddCommand(stagesListCmd)
	stagesCmd.AddCommand(stagesDAGCmd)

	stagesDAGCmd.Flags().Bool("dot", false, "Output in DOT format")
}

func runStagesList(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	graph, err := engine.StageGraph(&cfg.Stages)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSTAGE\tDEPENDS ON")
	for i, stage := range graph.Order() {
		deps := strings.Join(graph.GetDependencies(stage), ",")
		if deps == "" {
			deps = "-"
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, stage, deps)
	}
	_ = w.Flush()

	return nil
}

func runStagesDAG(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	graph, err := engine.StageGraph(&cfg.Stages)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if dotFlag, _ := cmd.Flags().GetBool("dot"); dotFlag {
		_, _ = fmt.Fprintln(out, graph.GenerateDOTFormat())
		return nil
	}

	levels := graph.Levels()

	keys := make([]int, 0, len(levels))
	for level := range levels {
		keys = append(keys, level)
	}
	sort.Ints(keys)

	_, _ = fmt.Fprintln(out, "Dependency Graph:")
	_, _ = fmt.Fprintln(out, "=================")
	for _, level := range keys {
		_, _ = fmt.Fprintf(out, "Level %d: %s\n", level, strings.Join(levels[level], ", "))
	}

	return nil
}
