//go:build windows

package onnx

import (
	"context"
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

const defaultAPIVersion = 23

// RunnerConfig holds ORT library settings for creating runners.
// In windows builds, native ORT runner support is currently unavailable.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

// Runner is unavailable in windows builds.
type Runner struct {
	name string
}

// NewRunner always returns an error in windows builds.
func NewRunner(modelPath string, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on windows for model %q", modelPath)
}

// Run always returns an error in windows builds.
func (r *Runner) Run(_ context.Context, _ map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on windows for %q", r.name)
}

// Close is a no-op in windows builds.
func (r *Runner) Close() {}

// Name returns the test case name.
func (r *Runner) Name() string {
	return r.name
}
