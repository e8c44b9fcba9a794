package engine

import (
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// axesSource reads Squeeze/Unsqueeze axes from an attribute before opset
// 13 and from the second input afterwards.
func axesSource(c *Call) ([]int64, error) {
	if c.Op.Since >= 13 {
		axes, _, err := intsInput(c, 1)
		return axes, err
	}

	return c.Attrs.Ints("axes")
}

func shapeOperators() []*Operator {
	expand := newOp("Expand", 2, 2, func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		shape, _, err := intsInput(c, 1)
		if err != nil {
			return nil, err
		}

		return single(ops.Expand(x, shape))
	})

	squeeze := func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		axes, err := axesSource(c)
		if err != nil {
			return nil, err
		}

		return single(ops.Squeeze(x, axes))
	}

	unsqueeze := func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		axes, err := axesSource(c)
		if err != nil {
			return nil, err
		}

		return single(ops.Unsqueeze(x, axes))
	}

	reshape := func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		shape, _, err := intsInput(c, 1)
		if err != nil {
			return nil, err
		}

		var allowZero bool
		if c.Attrs.Has("allowzero") {
			if allowZero, err = c.Attrs.Bool("allowzero"); err != nil {
				return nil, err
			}
		}

		return single(ops.Reshape(x, shape, allowZero))
	}

	transpose := func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		perm, err := c.Attrs.Ints("perm")
		if err != nil {
			return nil, err
		}

		return single(ops.Transpose(x, perm))
	}

	concatenate := func(c *Call) ([]tensor.Value, error) {
		inputs, err := c.Tensors()
		if err != nil {
			return nil, err
		}

		if len(inputs) == 0 {
			return nil, fmt.Errorf("engine: Concat: every input is absent: %w", ErrArityMismatch)
		}

		axis, err := c.Attrs.Int("axis")
		if err != nil {
			return nil, err
		}

		return single(ops.Concat(axis, inputs...))
	}

	return concat(
		versions(expand, 8, 13),
		versions(newOp("Squeeze", 1, 1, squeeze, optional("axes", AttrInts)), 1, 11),
		versions(newOp("Squeeze", 1, 2, squeeze), 13, 21),
		versions(newOp("Unsqueeze", 1, 1, unsqueeze, required("axes", AttrInts)), 1, 11),
		versions(newOp("Unsqueeze", 2, 2, unsqueeze), 13, 21),
		versions(newOp("Transpose", 1, 1, transpose, optional("perm", AttrInts)), 1, 13, 21),
		versions(newOp("Reshape", 2, 2, reshape), 5, 13),
		versions(newOp("Reshape", 2, 2, reshape, withDefault("allowzero", IntAttr(0))), 14, 19, 21),
		versions(newOp("Concat", 1, -1, concatenate, required("axis", AttrInt)), 4, 11, 13),
	)
}
