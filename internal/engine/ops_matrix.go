package engine

import (
	"errors"
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

func computeGemm(c *Call) ([]tensor.Value, error) {
	a, err := c.Input(0)
	if err != nil {
		return nil, err
	}

	b, err := c.Input(1)
	if err != nil {
		return nil, err
	}

	cIn, err := c.Input(2)
	if err != nil {
		return nil, err
	}

	var p ops.GemmParams

	if p.Alpha, err = c.Attrs.Float("alpha"); err != nil {
		return nil, err
	}

	if p.Beta, err = c.Attrs.Float("beta"); err != nil {
		return nil, err
	}

	if p.TransA, err = c.Attrs.Bool("transA"); err != nil {
		return nil, err
	}

	if p.TransB, err = c.Attrs.Bool("transB"); err != nil {
		return nil, err
	}

	return single(ops.Gemm(a, b, cIn, p))
}

func matrixOperators() []*Operator {
	gemmAttrs := []AttrSpec{
		withDefault("alpha", FloatAttr(1)),
		withDefault("beta", FloatAttr(1)),
		withDefault("transA", IntAttr(0)),
		withDefault("transB", IntAttr(0)),
	}

	einsum := func(c *Call) ([]tensor.Value, error) {
		eq, err := c.Attrs.Str("equation")
		if err != nil {
			return nil, err
		}

		inputs, err := c.Tensors()
		if err != nil {
			return nil, err
		}

		out, err := ops.Einsum(eq, inputs...)
		if errors.Is(err, ops.ErrInvalidEquation) {
			return nil, fmt.Errorf("%w: %w", ErrAttribute, err)
		}

		return single(out, err)
	}

	return concat(
		// C became optional in opset 11.
		versions(newOp("Gemm", 3, 3, computeGemm, gemmAttrs...), 7, 9),
		versions(newOp("Gemm", 2, 3, computeGemm, gemmAttrs...), 11, 13),
		binaryOp("MatMul", ops.MatMul, 1, 9, 13),
		versions(newOp("Einsum", 1, -1, einsum, required("equation", AttrString)), 12),
	)
}
