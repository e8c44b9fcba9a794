package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/cwbudde/go-onnxref/internal/config"
	"github.com/cwbudde/go-onnxref/internal/conformance"
	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/spf13/cobra"
)

type suiteFlags struct {
	dir     string
	filter  string
	format  string
	verbose bool
}

func (f *suiteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "dir", "", "Node test directory (defaults to conformance.test_data_dir)")
	cmd.Flags().StringVar(&f.filter, "filter", "", "Only run cases whose name contains this substring")
	cmd.Flags().StringVar(&f.format, "format", "table", "Output format: table|json")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "List passing cases too")
}

func (f *suiteFlags) load(cfg config.Config) ([]*conformance.Case, error) {
	if err := checkFormat(f.format); err != nil {
		return nil, err
	}

	dir := f.dir
	if dir == "" {
		dir = cfg.Conformance.TestDataDir
	}

	return conformance.LoadCases(dir, f.filter)
}

func (f *suiteFlags) report(w io.Writer, results []conformance.Result) error {
	if f.format == "json" {
		if err := conformance.FormatJSON(results, w); err != nil {
			return err
		}
	} else {
		conformance.FormatTable(results, f.verbose, w)
	}

	return conformance.Summarize(results).Err()
}

func newRunner(cfg config.Config) *conformance.Runner {
	return &conformance.Runner{
		Engine:    newEngine(cfg),
		Tolerance: ops.Tolerance{Abs: cfg.Tolerance.Abs, Rel: cfg.Tolerance.Rel},
		Workers:   cfg.Conformance.Workers,
		Logger:    slog.Default(),
	}
}

func newRunCmd() *cobra.Command {
	var flags suiteFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ONNX backend node tests against the reference kernels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return runSuite(cmd.Context(), cfg, &flags, cmd.OutOrStdout())
		},
	}

	flags.register(cmd)

	return cmd
}

func runSuite(ctx context.Context, cfg config.Config, flags *suiteFlags, w io.Writer) error {
	cases, err := flags.load(cfg)
	if err != nil {
		return err
	}

	results, err := newRunner(cfg).Run(ctx, cases)
	if err != nil {
		return err
	}

	return flags.report(w, results)
}
