package engine

import (
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

func single(t *tensor.Tensor, err error) ([]tensor.Value, error) {
	if err != nil {
		return nil, err
	}

	return []tensor.Value{t}, nil
}

func attrError(c *Call, format string, args ...any) error {
	return fmt.Errorf("engine: %s-%d: %s: %w", c.Op.Name, c.Op.Since, fmt.Sprintf(format, args...), ErrAttribute)
}

func unaryOp(name string, fn func(*tensor.Tensor) (*tensor.Tensor, error), since ...int) []*Operator {
	return versions(Operator{
		Name:      name,
		MinInputs: 1,
		MaxInputs: 1,
		Outputs:   1,
		Compute: func(c *Call) ([]tensor.Value, error) {
			x, err := c.Input(0)
			if err != nil {
				return nil, err
			}

			return single(fn(x))
		},
	}, since...)
}

func binaryOp(name string, fn func(a, b *tensor.Tensor) (*tensor.Tensor, error), since ...int) []*Operator {
	return versions(Operator{
		Name:      name,
		MinInputs: 2,
		MaxInputs: 2,
		Outputs:   1,
		Compute: func(c *Call) ([]tensor.Value, error) {
			a, err := c.Input(0)
			if err != nil {
				return nil, err
			}

			b, err := c.Input(1)
			if err != nil {
				return nil, err
			}

			return single(fn(a, b))
		},
	}, since...)
}

// intsInput reads optional input i as a list of integers. ok is false when
// the input is absent.
func intsInput(c *Call, i int) (v []int64, ok bool, err error) {
	t, err := c.Input(i)
	if err != nil || t == nil {
		return nil, false, err
	}

	switch d := t.RawData().(type) {
	case []int64:
		return append([]int64{}, d...), true, nil
	case []int32:
		out := make([]int64, len(d))
		for j, x := range d {
			out[j] = int64(x)
		}

		return out, true, nil
	}

	return nil, false, fmt.Errorf("engine: %s: input %d has dtype %v, want int64: %w", c.Op.Name, i, t.DType(), tensor.ErrUnsupportedDType)
}

func concat[T any](groups ...[]T) []T {
	var out []T
	for _, g := range groups {
		out = append(out, g...)
	}

	return out
}

// newOp builds a single-output operator.
func newOp(name string, minIn, maxIn int, compute func(*Call) ([]tensor.Value, error), attrs ...AttrSpec) Operator {
	return Operator{
		Name:      name,
		MinInputs: minIn,
		MaxInputs: maxIn,
		Outputs:   1,
		Attrs:     attrs,
		Compute:   compute,
	}
}
