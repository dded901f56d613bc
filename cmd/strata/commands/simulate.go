package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/strata/internal/app"
	"go.trai.ch/strata/internal/engine/process"
)

func (c *CLI) newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Seed a coastline and run surface processes over it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, _ := cmd.Flags().GetStringSlice("process")
			ticks, _ := cmd.Flags().GetInt("ticks")
			intensity, _ := cmd.Flags().GetFloat64("intensity")
			seed, _ := cmd.Flags().GetUint64("seed")
			partitions, _ := cmd.Flags().GetInt("partitions")

			kinds := make([]process.Kind, 0, len(names))
			for _, name := range names {
				k, err := process.ParseKind(name)
				if err != nil {
					return err
				}
				kinds = append(kinds, k)
			}

			report, err := c.app.Simulate(cmd.Context(), app.SimulateOptions{
				Kinds:      kinds,
				Ticks:      ticks,
				Intensity:  intensity,
				Seed:       seed,
				Partitions: partitions,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
			return err
		},
	}

	defaults := make([]string, 0, len(process.Kinds()))
	for _, k := range process.Kinds() {
		defaults = append(defaults, string(k))
	}
	cmd.Flags().StringSliceP("process", "p", defaults, "Processes to run each tick")
	cmd.Flags().IntP("ticks", "t", 5, "Number of ticks to simulate")
	cmd.Flags().Float64P("intensity", "i", 0.5, "Probability that an eligible voxel changes")
	cmd.Flags().Uint64("seed", 1, "Seed for reproducible runs")
	cmd.Flags().Int("partitions", 2, "Number of slabs processed concurrently")
	return cmd
}

func (c *CLI) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Seed a coastline and report storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := c.app.Simulate(cmd.Context(), app.SimulateOptions{})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
			return err
		},
	}
}
