package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/spf13/cobra"
)

func newOpsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "List registered operators and their versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}

			return writeOperators(cmd.OutOrStdout(), engine.Operators(), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")

	return cmd
}

func writeOperators(w io.Writer, infos []engine.OperatorInfo, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(infos)
	}

	for _, info := range infos {
		vs := make([]string, len(info.Versions))
		for i, v := range info.Versions {
			vs[i] = strconv.Itoa(v)
		}

		if _, err := fmt.Fprintf(w, "%-20s %s\n", info.Name, strings.Join(vs, ", ")); err != nil {
			return err
		}
	}

	return nil
}

func checkFormat(format string) error {
	if format != "table" && format != "json" {
		return fmt.Errorf("--format must be 'table' or 'json'")
	}

	return nil
}
