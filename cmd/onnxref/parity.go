package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/cwbudde/go-onnxref/internal/config"
	"github.com/cwbudde/go-onnxref/internal/onnx"
	"github.com/spf13/cobra"
)

func newParityCmd() *cobra.Command {
	var flags suiteFlags

	cmd := &cobra.Command{
		Use:   "parity",
		Short: "Compare the reference kernels with ONNX Runtime on the node tests",
		Long: `parity runs each node test model in ONNX Runtime and compares its outputs
with the reference engine's. Cases with random operators or with inputs
other than float32 and int64 tensors are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return runParity(cmd.Context(), cfg, &flags, cmd.OutOrStdout())
		},
	}

	flags.register(cmd)

	return cmd
}

func runParity(ctx context.Context, cfg config.Config, flags *suiteFlags, w io.Writer) error {
	cases, err := flags.load(cfg)
	if err != nil {
		return err
	}

	info, err := onnx.Bootstrap(cfg.Runtime)
	if err != nil {
		return err
	}

	slog.Info("onnx runtime", slog.String("library", info.LibraryPath), slog.String("version", info.Version))

	results, err := newRunner(cfg).Parity(ctx, cases, onnx.RunnerConfig{
		LibraryPath: info.LibraryPath,
		APIVersion:  cfg.Runtime.ORTAPIVersion,
	})
	if err != nil {
		return err
	}

	return flags.report(w, results)
}
