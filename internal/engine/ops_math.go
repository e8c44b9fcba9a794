package engine

import (
	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

func mathOperators() []*Operator {
	return concat(
		unaryOp("Abs", ops.Abs, 6, 13),
		unaryOp("Neg", ops.Neg, 6, 13),
		unaryOp("Relu", ops.Relu, 6, 13, 14),
		unaryOp("Log", ops.Log, 6, 13),
		unaryOp("Exp", ops.Exp, 6, 13),
		unaryOp("Cos", ops.Cos, 7),
		unaryOp("Sin", ops.Sin, 7),
		unaryOp("Tan", ops.Tan, 7),
		unaryOp("Acosh", ops.Acosh, 9),
		unaryOp("Sqrt", ops.Sqrt, 6, 13),
		unaryOp("Floor", ops.Floor, 6, 13),
		unaryOp("Ceil", ops.Ceil, 6, 13),
		unaryOp("Tanh", ops.Tanh, 6, 13),
		unaryOp("Round", ops.Round, 11),
		unaryOp("Sigmoid", ops.Sigmoid, 6, 13),
		binaryOp("Add", ops.Add, 7, 13, 14),
		binaryOp("Sub", ops.Sub, 7, 13, 14),
		binaryOp("Mul", ops.Mul, 7, 13, 14),
		binaryOp("Div", ops.Div, 7, 13, 14),
		versions(Operator{
			Name:      "Cast",
			MinInputs: 1,
			MaxInputs: 1,
			Outputs:   1,
			Attrs:     []AttrSpec{required("to", AttrInt)},
			Compute:   computeCast,
		}, 6, 9, 13),
		// saturate only affects float8 targets, which are not supported.
		versions(Operator{
			Name:      "Cast",
			MinInputs: 1,
			MaxInputs: 1,
			Outputs:   1,
			Attrs: []AttrSpec{
				required("to", AttrInt),
				withDefault("saturate", IntAttr(1)),
			},
			Compute: computeCast,
		}, 19, 21),
	)
}

func computeCast(c *Call) ([]tensor.Value, error) {
	x, err := c.Input(0)
	if err != nil {
		return nil, err
	}

	to, err := c.Attrs.Int("to")
	if err != nil {
		return nil, err
	}

	dt, err := tensor.DTypeFromONNX(to)
	if err != nil {
		return nil, err
	}

	return single(ops.Cast(x, dt))
}
