package ops

import (
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// indexValues widens an int32 or int64 index tensor.
func indexValues(op string, t *tensor.Tensor) ([]int64, error) {
	switch d := t.RawData().(type) {
	case []int64:
		return d, nil
	case []int32:
		return mapSlice(d, func(v int32) int64 { return int64(v) }), nil
	}

	return nil, unsupported(op, t.DType())
}

// resolveIndex maps an index in [-n, n-1] to [0, n-1].
func resolveIndex(op string, idx, n int64) (int64, error) {
	if idx < -n || idx >= n {
		return 0, fmt.Errorf("ops: %s: index %d out of range for dimension of size %d: %w", op, idx, n, tensor.ErrIndexOutOfRange)
	}

	if idx < 0 {
		idx += n
	}

	return idx, nil
}

// GatherElements picks data values along axis at the positions given by
// indices. The output has the shape of indices.
func GatherElements(data, indices *tensor.Tensor, axis int64) (*tensor.Tensor, error) {
	const op = "GatherElements"

	if err := requireInput(op, "data", data); err != nil {
		return nil, err
	}

	if err := requireInput(op, "indices", indices); err != nil {
		return nil, err
	}

	rank := data.Rank()
	if indices.Rank() != rank {
		return nil, fmt.Errorf("ops: %s: indices rank %d differs from data rank %d: %w", op, indices.Rank(), rank, tensor.ErrShapeMismatch)
	}

	ax, err := tensor.NormalizeAxis(axis, rank)
	if err != nil {
		return nil, err
	}

	dShape := data.Shape()
	iShape := indices.Shape()

	for d := range rank {
		if d != ax && iShape[d] > dShape[d] {
			return nil, fmt.Errorf("ops: %s: indices shape %v exceeds data shape %v at dim %d: %w", op, iShape, dShape, d, tensor.ErrShapeMismatch)
		}
	}

	idx, err := indexValues(op, indices)
	if err != nil {
		return nil, err
	}

	dStrides := tensor.Strides(dShape)
	iStrides := tensor.Strides(iShape)
	coord := make([]int64, rank)
	src := make([]int64, len(idx))

	for i, raw := range idx {
		tensor.Unravel(int64(i), iShape, iStrides, coord)

		r, err := resolveIndex(op, raw, dShape[ax])
		if err != nil {
			return nil, err
		}

		coord[ax] = r

		var off int64
		for d := range rank {
			off += coord[d] * dStrides[d]
		}

		src[i] = off
	}

	return tensor.Take(data, iShape, src)
}

// Gather selects slices of data along axis. The output shape is
// data[:axis] + indices + data[axis+1:].
func Gather(data, indices *tensor.Tensor, axis int64) (*tensor.Tensor, error) {
	const op = "Gather"

	if err := requireInput(op, "data", data); err != nil {
		return nil, err
	}

	if err := requireInput(op, "indices", indices); err != nil {
		return nil, err
	}

	ax, err := tensor.NormalizeAxis(axis, data.Rank())
	if err != nil {
		return nil, err
	}

	idx, err := indexValues(op, indices)
	if err != nil {
		return nil, err
	}

	dShape := data.Shape()
	n := dShape[ax]

	resolved := make([]int64, len(idx))
	for i, raw := range idx {
		if resolved[i], err = resolveIndex(op, raw, n); err != nil {
			return nil, err
		}
	}

	outer := shapeProduct(dShape[:ax])
	inner := shapeProduct(dShape[ax+1:])

	outShape := append(append(append([]int64{}, dShape[:ax]...), indices.Shape()...), dShape[ax+1:]...)

	total, err := outputSize(op, outShape)
	if err != nil {
		return nil, err
	}

	if total == 0 {
		return tensor.Take(data, outShape, nil)
	}

	src := make([]int64, 0, total)

	for o := range outer {
		for _, r := range resolved {
			base := (o*n + r) * inner
			for j := range inner {
				src = append(src, base+j)
			}
		}
	}

	return tensor.Take(data, outShape, src)
}
