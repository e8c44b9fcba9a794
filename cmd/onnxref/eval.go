package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/cwbudde/go-onnxref/internal/safetensors"
	"github.com/cwbudde/go-onnxref/internal/server"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	var (
		flags callFlags
		out   string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one operator on input files",
		Example: `  onnxref eval --op Add --input a.pb --input b.pb
  onnxref eval --op Transpose --attr perm=1,0 --input x.json
  onnxref eval --op Softmax --version 11 --input inputs.safetensors --out outputs.safetensors`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			eng := newEngine(cfg)

			c, err := flags.build(eng)
			if err != nil {
				return err
			}

			outputs, err := c.evaluate(eng)
			if err != nil {
				return err
			}

			slog.Debug("eval complete", slog.String("op", c.op.Name), slog.Int("since", c.op.Since), slog.Int("outputs", len(outputs)))

			if out != "" {
				return writeOutputs(out, outputs)
			}

			return printOutputs(cmd.OutOrStdout(), outputs)
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&out, "out", "", "Write outputs to a .safetensors file instead of stdout")

	return cmd
}

func printOutputs(w io.Writer, outputs []tensor.Value) error {
	encoded := make([]*server.Value, len(outputs))

	for i, v := range outputs {
		ev, err := server.EncodeValue(v)
		if err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}

		encoded[i] = ev
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(map[string]any{"outputs": encoded})
}

func writeOutputs(path string, outputs []tensor.Value) error {
	ts := make([]*tensor.Tensor, len(outputs))

	for i, v := range outputs {
		t, ok := v.(*tensor.Tensor)
		if !ok {
			return fmt.Errorf("output %d is %T; safetensors holds tensors only", i, v)
		}

		ts[i] = t
	}

	return safetensors.WritePositional(path, outputPrefix, ts)
}
