package engine

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

func computeBernoulli(c *Call) ([]tensor.Value, error) {
	x, err := c.Input(0)
	if err != nil {
		return nil, err
	}

	dt := tensor.Undefined

	if c.Attrs.Has("dtype") {
		code, err := c.Attrs.Int("dtype")
		if err != nil {
			return nil, err
		}

		if dt, err = tensor.DTypeFromONNX(code); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAttribute, err)
		}
	}

	rng := c.Rand()

	// A seed attribute gives the call its own reproducible source.
	if c.Attrs.Has("seed") {
		seed, err := c.Attrs.Float("seed")
		if err != nil {
			return nil, err
		}

		rng = rand.New(rand.NewPCG(math.Float64bits(seed), 0))
	}

	return single(ops.Bernoulli(x, dt, rng))
}

// computeIdentity returns its input unchanged. Sequences are accepted from
// opset 14 and optionals from opset 16.
func computeIdentity(c *Call) ([]tensor.Value, error) {
	v := c.Inputs[0]

	switch v.ValueKind() {
	case tensor.KindTensor:
	case tensor.KindSequence:
		if c.Op.Since < 14 {
			return nil, fmt.Errorf("engine: Identity-%d: sequence input needs opset 14: %w", c.Op.Since, tensor.ErrUnsupportedDType)
		}
	case tensor.KindOptional:
		if c.Op.Since < 16 {
			return nil, fmt.Errorf("engine: Identity-%d: optional input needs opset 16: %w", c.Op.Since, tensor.ErrUnsupportedDType)
		}
	default:
		return nil, fmt.Errorf("engine: Identity: value kind %v: %w", v.ValueKind(), tensor.ErrUnsupportedDType)
	}

	return []tensor.Value{v}, nil
}

func miscOperators() []*Operator {
	return concat(
		versions(newOp("Bernoulli", 1, 1, computeBernoulli,
			optional("dtype", AttrInt),
			optional("seed", AttrFloat),
		), 15, 22),
		versions(newOp("Identity", 1, 1, computeIdentity), 1, 13, 14, 16, 19, 21),
	)
}
