package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// Descriptor names an operator and the opset version whose semantics apply.
// Version 0 means the engine's default opset.
type Descriptor struct {
	Name    string `json:"op"`
	Version int    `json:"version,omitempty"`
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	logger       *slog.Logger
	defaultOpset int
	seed         *uint64
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger used for per-evaluation debug records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDefaultOpset sets the version used when a Descriptor has none. Zero
// selects the latest registered version of each operator.
func WithDefaultOpset(v int) Option {
	return func(o *options) { o.defaultOpset = v }
}

// WithSeed makes stochastic operators draw from a PCG source seeded with
// seed on every call that has no explicit source or seed attribute.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = &seed }
}

type evalOptions struct {
	rng *rand.Rand
}

// EvalOption configures a single Evaluate call.
type EvalOption func(*evalOptions)

// WithRand supplies the random source for stochastic operators. The source
// is owned by the caller and must not be shared with concurrent calls.
func WithRand(r *rand.Rand) EvalOption {
	return func(o *evalOptions) { o.rng = r }
}

// Engine evaluates single operators. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	opts options
	log  *slog.Logger
}

func New(optFns ...Option) *Engine {
	opts := options{logger: slog.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{opts: opts, log: opts.logger}
}

// Resolve returns the operator version Evaluate would run for d.
func (e *Engine) Resolve(d Descriptor) (*Operator, error) {
	return Lookup(d.Name, e.version(d))
}

func (e *Engine) version(d Descriptor) int {
	if d.Version == 0 {
		return e.opts.defaultOpset
	}

	return d.Version
}

// Evaluate runs the operator named by d on inputs. Absent optional inputs
// are nil entries. Kernel errors are returned unchanged; no outputs are
// returned on failure.
func (e *Engine) Evaluate(d Descriptor, inputs []tensor.Value, attrs Attributes, optFns ...EvalOption) ([]tensor.Value, error) {
	op, err := e.Resolve(d)
	if err != nil {
		return nil, err
	}

	if err := op.checkInputs(inputs); err != nil {
		return nil, err
	}

	resolved, err := op.resolveAttrs(attrs)
	if err != nil {
		return nil, err
	}

	var eo evalOptions
	for _, fn := range optFns {
		fn(&eo)
	}

	call := &Call{
		Op:      op,
		Version: e.version(d),
		Inputs:  inputs,
		Attrs:   resolved,
		rand:    e.randSource(eo.rng),
	}

	start := time.Now()

	outputs, err := e.compute(call)
	if err != nil {
		e.log.Debug("evaluate failed", "op", op.Name, "since", op.Since, "kind", Kind(err), "error", err)
		return nil, err
	}

	if len(outputs) != op.Outputs {
		return nil, fmt.Errorf("engine: %s-%d: produced %d outputs, want %d", op.Name, op.Since, len(outputs), op.Outputs)
	}

	e.log.Debug("evaluate",
		"op", op.Name,
		"since", op.Since,
		"inputs", len(inputs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return outputs, nil
}

// compute runs the kernel and turns a panic into an ErrInternal error.
func (e *Engine) compute(call *Call) (outputs []tensor.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("operator panicked", "op", call.Op.Name, "since", call.Op.Since, "panic", r)
			outputs, err = nil, fmt.Errorf("engine: %s-%d: %v: %w", call.Op.Name, call.Op.Since, r, ErrInternal)
		}
	}()

	return call.Op.Compute(call)
}

func (e *Engine) randSource(explicit *rand.Rand) func() *rand.Rand {
	var rng *rand.Rand

	return func() *rand.Rand {
		if rng != nil {
			return rng
		}

		switch {
		case explicit != nil:
			rng = explicit
		case e.opts.seed != nil:
			rng = rand.New(rand.NewPCG(*e.opts.seed, 0))
		default:
			rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}

		return rng
	}
}
