package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/config"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/cwbudde/go-onnxref/internal/testutil"
)

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}

func mustTensor[T tensor.Element](t *testing.T, data []T, shape ...int64) *tensor.Tensor {
	t.Helper()

	x, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	return x
}

// writeTensorFile stores x as a TensorProto .pb file.
func writeTensorFile(t *testing.T, dir, name string, x *tensor.Tensor) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, testutil.TensorProto(name, x), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return path
}

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()

	want := []string{"ops", "eval", "run", "parity", "bench", "serve", "health", "doctor"}
	for _, name := range want {
		found := false

		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		if !found {
			t.Errorf("expected subcommand %q not found in root", name)
		}
	}
}

func TestNewRootCmd_HasPersistentConfigFlag(t *testing.T) {
	root := NewRootCmd()
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("expected --config persistent flag to be registered")
	}

	if root.PersistentFlags().Lookup("engine-seed") == nil {
		t.Error("expected config flags to be registered as persistent flags")
	}
}

func TestSetupLogger_DoesNotPanic(_ *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "not-a-level"} {
		setupLogger(level)
	}
}

func TestRequireConfig(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	activeCfg = config.Config{}
	if _, err := requireConfig(); err == nil {
		t.Fatal("expected error when config is not loaded")
	}

	activeCfg = config.DefaultConfig()

	got, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig: %v", err)
	}

	if got.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want info", got.LogLevel)
	}
}

func TestPersistentPreRun_LoadsFlags(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() { activeCfg = orig })

	if _, err := execute(t, "ops", "--engine-seed", "11", "--tolerance-abs", "0.5"); err != nil {
		t.Fatalf("ops: %v", err)
	}

	if activeCfg.Engine.Seed != 11 {
		t.Errorf("Engine.Seed = %d; want 11", activeCfg.Engine.Seed)
	}

	if activeCfg.Tolerance.Abs != 0.5 {
		t.Errorf("Tolerance.Abs = %v; want 0.5", activeCfg.Tolerance.Abs)
	}
}

func TestPersistentPreRun_SetsElementLimit(t *testing.T) {
	orig := activeCfg

	t.Cleanup(func() {
		activeCfg = orig
		tensor.SetMaxElements(0)
	})

	if _, err := execute(t, "ops", "--engine-max-elements", "1000"); err != nil {
		t.Fatalf("ops: %v", err)
	}

	if got := tensor.MaxElements(); got != 1000 {
		t.Errorf("MaxElements() = %d; want 1000", got)
	}
}

func TestHealthAddr(t *testing.T) {
	tests := map[string]string{
		":8080":          "127.0.0.1:8080",
		"localhost:9000": "localhost:9000",
		"10.0.0.1:80":    "10.0.0.1:80",
	}

	for in, want := range tests {
		if got := healthAddr(in); got != want {
			t.Errorf("healthAddr(%q) = %q; want %q", in, got, want)
		}
	}
}
