package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cwbudde/go-onnxref/internal/bench"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		flags      callFlags
		runs       int
		warmup     int
		format     string
		cpuProfile string
		threshold  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark one operator evaluation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}

			if err := checkFormat(format); err != nil {
				return err
			}

			eng := newEngine(cfg)

			c, err := flags.build(eng)
			if err != nil {
				return err
			}

			label := fmt.Sprintf("%s-%d", c.op.Name, c.op.Since)

			results, err := bench.Run(cmd.Context(), bench.Config{
				Label:      label,
				Runs:       runs,
				Warmup:     warmup,
				CPUProfile: cpuProfile,
			}, func(context.Context) (int64, error) {
				outputs, err := c.evaluate(eng)
				return outputElements(outputs), err
			})
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))
			w := cmd.OutOrStdout()

			switch format {
			case "json":
				if err := bench.FormatJSON(label, results, stats, w); err != nil {
					return err
				}
			default:
				bench.FormatTable(label, results, stats, w)
			}

			return bench.CheckThreshold(stats.Mean, threshold)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of measured runs")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Unmeasured runs before measuring")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a pprof CPU profile of the measured runs")
	cmd.Flags().DurationVar(&threshold, "threshold", 0, "Exit non-zero if the mean run exceeds this duration (0 = disabled)")

	return cmd
}
