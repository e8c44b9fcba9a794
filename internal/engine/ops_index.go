package engine

import (
	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

func gatherOp(name string, fn func(data, indices *tensor.Tensor, axis int64) (*tensor.Tensor, error), since ...int) []*Operator {
	return versions(Operator{
		Name:      name,
		MinInputs: 2,
		MaxInputs: 2,
		Outputs:   1,
		Attrs:     []AttrSpec{withDefault("axis", IntAttr(0))},
		Compute: func(c *Call) ([]tensor.Value, error) {
			data, err := c.Input(0)
			if err != nil {
				return nil, err
			}

			indices, err := c.Input(1)
			if err != nil {
				return nil, err
			}

			axis, err := c.Attrs.Int("axis")
			if err != nil {
				return nil, err
			}

			return single(fn(data, indices, axis))
		},
	}, since...)
}

func indexOperators() []*Operator {
	return concat(
		gatherOp("GatherElements", ops.GatherElements, 11, 13),
		gatherOp("Gather", ops.Gather, 1, 11, 13),
	)
}
