package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cwbudde/go-onnxref/internal/config"
	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/cwbudde/go-onnxref/internal/server"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "onnxref",
		Short:         "Reference evaluator for ONNX operators",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			tensor.SetWorkers(loaded.Runtime.Workers)
			tensor.SetMaxElements(loaded.Engine.MaxElements)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newOpsCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newParityCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.LogLevel == "" {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}

func newEngine(cfg config.Config) *engine.Engine {
	return engine.New(server.EngineOptions(cfg, slog.Default())...)
}
