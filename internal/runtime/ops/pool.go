package ops

import (
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

func spatialAxes(op string, x *tensor.Tensor) ([]int64, error) {
	if err := requireInput(op, "X", x); err != nil {
		return nil, err
	}

	if x.Rank() < 2 {
		return nil, fmt.Errorf("ops: %s: input must be (N, C, ...), got %v: %w", op, x.Shape(), tensor.ErrShapeMismatch)
	}

	axes := make([]int64, 0, x.Rank()-2)
	for d := 2; d < x.Rank(); d++ {
		axes = append(axes, int64(d))
	}

	return axes, nil
}

// GlobalAveragePool averages every spatial dimension, keeping them as size 1.
func GlobalAveragePool(x *tensor.Tensor) (*tensor.Tensor, error) {
	axes, err := spatialAxes("GlobalAveragePool", x)
	if err != nil {
		return nil, err
	}

	if !x.DType().IsFloat() {
		return nil, unsupported("GlobalAveragePool", x.DType())
	}

	return ReduceMean(x, ReduceOptions{Axes: axes, KeepDims: true})
}

// GlobalMaxPool takes the maximum over every spatial dimension.
func GlobalMaxPool(x *tensor.Tensor) (*tensor.Tensor, error) {
	axes, err := spatialAxes("GlobalMaxPool", x)
	if err != nil {
		return nil, err
	}

	if !x.DType().IsFloat() {
		return nil, unsupported("GlobalMaxPool", x.DType())
	}

	return ReduceMax(x, ReduceOptions{Axes: axes, KeepDims: true})
}
