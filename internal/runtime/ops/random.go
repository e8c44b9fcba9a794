package ops

import (
	"errors"
	"math/rand/v2"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// Bernoulli draws 1 with probability x[i] for every element, in row-major
// order from rng. Probabilities are clamped to [0, 1] and NaN draws 0. The
// output has dtype, or x's dtype when dtype is Undefined.
func Bernoulli(x *tensor.Tensor, dtype tensor.DType, rng *rand.Rand) (*tensor.Tensor, error) {
	const op = "Bernoulli"

	if err := requireInput(op, "input", x); err != nil {
		return nil, err
	}

	if rng == nil {
		return nil, errors.New("ops: Bernoulli: nil random source")
	}

	p, err := toFloat64(op, x)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(p))
	for i, v := range p {
		if rng.Float64() < v {
			out[i] = 1
		}
	}

	if dtype == tensor.Undefined {
		dtype = x.DType()
	}

	t, err := wrap(x.Shape(), out)
	if err != nil {
		return nil, err
	}

	return t.Cast(dtype)
}
