package conformance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/onnx"
	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one case.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// Result records what happened to one case.
type Result struct {
	Name     string        `json:"name"`
	Op       string        `json:"op,omitempty"`
	Version  int           `json:"version,omitempty"`
	Status   Status        `json:"status"`
	Kind     string        `json:"kind,omitempty"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Runner evaluates cases with an engine and compares against the recorded
// outputs.
type Runner struct {
	Engine    *engine.Engine
	Tolerance ops.Tolerance
	// Workers bounds concurrent cases; values below 1 run one at a time.
	Workers int
	Logger  *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}

	return slog.Default()
}

func (r *Runner) workers() int {
	return max(r.Workers, 1)
}

// Run evaluates every case and returns one Result per case in input order.
// Only context cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, cases []*Case) ([]Result, error) {
	return r.each(ctx, cases, r.runCase)
}

func (r *Runner) each(ctx context.Context, cases []*Case, fn func(context.Context, *Case) Result) ([]Result, error) {
	results := make([]Result, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())

	for i, c := range cases {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			res := fn(ctx, c)
			res.Duration = time.Since(start)
			results[i] = res

			r.logger().Debug("conformance case",
				"case", res.Name,
				"status", res.Status,
				"duration_ms", res.Duration.Milliseconds(),
			)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (r *Runner) runCase(_ context.Context, c *Case) Result {
	res := Result{Name: c.Name, Op: c.Descriptor.Name, Version: c.Descriptor.Version}

	if c.Err != nil {
		return failed(res, c.Err)
	}

	outputs, err := r.Engine.Evaluate(c.Descriptor, c.Inputs, c.Node.Attributes)
	if err != nil {
		return failed(res, err)
	}

	nondeterministic := ops.IsNondeterministic(c.Descriptor.Name)
	tol := ops.OperatorTolerance(c.Descriptor.Name, r.Tolerance)

	for i, want := range c.Expected {
		if want == nil {
			continue
		}

		if i >= len(outputs) {
			return mismatch(res, fmt.Errorf("output %d missing: %w", i, ErrMismatch))
		}

		if nondeterministic {
			err = CompareDomain(outputs[i], want)
		} else {
			err = Compare(outputs[i], want, tol)
		}

		if err != nil {
			return mismatch(res, fmt.Errorf("output %d: %w", i, err))
		}
	}

	res.Status = StatusPass

	return res
}

// failed classifies an error raised before any output was compared.
func failed(res Result, err error) Result {
	res.Message = err.Error()
	res.Kind = engine.Kind(err)

	switch {
	case unsupported(err):
		res.Status = StatusSkip
	default:
		res.Status = StatusError
	}

	return res
}

func mismatch(res Result, err error) Result {
	res.Status = StatusFail
	res.Message = err.Error()

	return res
}

// Parity runs each case through ONNX Runtime as well and compares the
// engine's outputs against it instead of the recorded ones. Cases whose
// values ONNX Runtime cannot exchange are skipped.
func (r *Runner) Parity(ctx context.Context, cases []*Case, cfg onnx.RunnerConfig) ([]Result, error) {
	return r.each(ctx, cases, func(ctx context.Context, c *Case) Result {
		return r.parityCase(ctx, c, cfg)
	})
}

func (r *Runner) parityCase(ctx context.Context, c *Case, cfg onnx.RunnerConfig) Result {
	res := Result{Name: c.Name, Op: c.Descriptor.Name, Version: c.Descriptor.Version}

	if c.Err != nil {
		return failed(res, c.Err)
	}

	if ops.IsNondeterministic(c.Descriptor.Name) {
		return failed(res, fmt.Errorf("%s draws from a random source: %w", c.Descriptor.Name, onnx.ErrUnsupported))
	}

	feeds, err := parityFeeds(c)
	if err != nil {
		return failed(res, err)
	}

	for _, want := range c.Expected {
		if t, ok := want.(*tensor.Tensor); want != nil && (!ok || !onnx.ParitySupported(t)) {
			return failed(res, fmt.Errorf("output is not a float32 or int64 tensor: %w", tensor.ErrUnsupportedDType))
		}
	}

	runner, err := onnx.NewRunner(filepath.Join(c.Dir, "model.onnx"), cfg)
	if err != nil {
		res.Status = StatusError
		res.Message = err.Error()

		return res
	}
	defer runner.Close()

	ortOut, err := runner.Run(ctx, feeds)
	if err != nil {
		res.Status = StatusError
		res.Message = fmt.Sprintf("onnx runtime: %v", err)

		return res
	}

	outputs, err := r.Engine.Evaluate(c.Descriptor, c.Inputs, c.Node.Attributes)
	if err != nil {
		return failed(res, err)
	}

	tol := ops.OperatorTolerance(c.Descriptor.Name, r.Tolerance)

	for i, name := range c.Node.Outputs {
		if name == "" || c.Expected[i] == nil {
			continue
		}

		want, ok := ortOut[name]
		if !ok {
			return mismatch(res, fmt.Errorf("onnx runtime produced no %q: %w", name, ErrMismatch))
		}

		if err := Compare(outputs[i], want, tol); err != nil {
			return mismatch(res, fmt.Errorf("output %q: %w", name, err))
		}
	}

	res.Status = StatusPass

	return res
}

// parityFeeds maps graph input names to tensors. Initializers are part of
// the model and are not fed.
func parityFeeds(c *Case) (map[string]*tensor.Tensor, error) {
	feeds := map[string]*tensor.Tensor{}

	for i, v := range c.Inputs {
		if v == nil {
			continue
		}

		t, ok := v.(*tensor.Tensor)
		if !ok || !onnx.ParitySupported(t) {
			return nil, fmt.Errorf("input %d is not a float32 or int64 tensor: %w", i, tensor.ErrUnsupportedDType)
		}

		if c.initializer(i) {
			continue
		}

		feeds[c.InputNames[i]] = t
	}

	return feeds, nil
}

func (c *Case) initializer(pos int) bool {
	return c.initializers != nil && c.initializers[c.InputNames[pos]]
}

// ErrFailures is returned by Summary.Err when any case failed or errored.
var ErrFailures = errors.New("conformance failures")
