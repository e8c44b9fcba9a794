package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/go-onnxref/internal/config"
	"github.com/cwbudde/go-onnxref/internal/doctor"
	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/onnx"
	"github.com/spf13/cobra"
)

// coreOperators must be registered in every build.
var coreOperators = []string{"Abs", "Add", "Identity", "MatMul", "Reshape", "Softmax", "Transpose"}

func newDoctorCmd() *cobra.Command {
	var (
		skipORT      bool
		skipTestData bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and test data checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			return runDoctor(cfg, skipORT, skipTestData, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&skipORT, "skip-ort", false, "Skip the ONNX Runtime check")
	cmd.Flags().BoolVar(&skipTestData, "skip-testdata", false, "Skip the node test data check")

	return cmd
}

func runDoctor(cfg config.Config, skipORT, skipTestData bool, stdout, stderr io.Writer) error {
	dcfg := doctor.Config{
		ORTVersion:        ortVersion(cfg.Runtime),
		ORTAPIVersion:     cfg.Runtime.ORTAPIVersion,
		SkipORT:           skipORT,
		Operators:         engine.Operators(),
		RequiredOperators: coreOperators,
	}
	if !skipTestData {
		dcfg.TestDataDir = cfg.Conformance.TestDataDir
	}

	result := doctor.Run(dcfg, stdout)

	if result.Failed() {
		for _, f := range result.Failures() {
			fmt.Fprintf(stderr, "FAIL: %s\n", f)
		}

		return errors.New("doctor checks failed")
	}

	_, _ = fmt.Fprintln(stdout, "doctor checks passed")

	return nil
}

func ortVersion(rc config.RuntimeConfig) doctor.VersionFunc {
	return func() (string, error) {
		info, err := onnx.DetectRuntime(rc)
		if err != nil {
			return "", err
		}

		return info.Version, nil
	}
}
