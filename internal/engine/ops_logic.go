package engine

import (
	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

func logicOperators() []*Operator {
	return concat(
		binaryOp("And", ops.And, 7),
		binaryOp("Or", ops.Or, 7),
		binaryOp("Xor", ops.Xor, 7),
		unaryOp("Not", ops.Not, 1),
		versions(Operator{
			Name:      "BitShift",
			MinInputs: 2,
			MaxInputs: 2,
			Outputs:   1,
			Attrs:     []AttrSpec{required("direction", AttrString)},
			Compute: func(c *Call) ([]tensor.Value, error) {
				x, err := c.Input(0)
				if err != nil {
					return nil, err
				}

				y, err := c.Input(1)
				if err != nil {
					return nil, err
				}

				dir, err := c.Attrs.Str("direction")
				if err != nil {
					return nil, err
				}

				switch dir {
				case "LEFT":
					return single(ops.BitShift(x, y, true))
				case "RIGHT":
					return single(ops.BitShift(x, y, false))
				}

				return nil, attrError(c, "direction %q is neither LEFT nor RIGHT", dir)
			},
		}, 11),
	)
}
