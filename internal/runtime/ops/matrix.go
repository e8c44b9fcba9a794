package ops

import (
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// GemmParams are the Gemm attributes.
type GemmParams struct {
	Alpha  float64
	Beta   float64
	TransA bool
	TransB bool
}

// DefaultGemmParams returns alpha=1, beta=1 and no transposes.
func DefaultGemmParams() GemmParams { return GemmParams{Alpha: 1, Beta: 1} }

// Gemm computes alpha*op(A)*op(B) + beta*C for 2-D A and B. C is optional
// and must broadcast to (M, N). Floating point products accumulate in
// float64; integer products accumulate in the element type.
func Gemm(a, b, c *tensor.Tensor, p GemmParams) (*tensor.Tensor, error) {
	const op = "Gemm"

	if err := requireInput(op, "A", a); err != nil {
		return nil, err
	}

	if err := requireInput(op, "B", b); err != nil {
		return nil, err
	}

	if err := sameDType(op, a, b); err != nil {
		return nil, err
	}

	if c != nil {
		if err := sameDType(op, a, c); err != nil {
			return nil, err
		}
	}

	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, fmt.Errorf("ops: %s: A and B must be 2-D, got %v and %v: %w", op, a.Shape(), b.Shape(), tensor.ErrShapeMismatch)
	}

	m, k := a.Dim(0), a.Dim(1)
	if p.TransA {
		m, k = k, m
	}

	k2, n := b.Dim(0), b.Dim(1)
	if p.TransB {
		k2, n = n, k2
	}

	if k != k2 {
		return nil, fmt.Errorf("ops: %s: inner dimensions differ: A %v (transA=%v), B %v (transB=%v): %w", op, a.Shape(), p.TransA, b.Shape(), p.TransB, tensor.ErrShapeMismatch)
	}

	outShape := []int64{m, n}
	if _, err := outputSize(op, outShape); err != nil {
		return nil, err
	}

	var cb *tensor.Tensor

	if c != nil {
		var err error
		if cb, err = c.BroadcastTo(outShape); err != nil {
			return nil, fmt.Errorf("ops: %s: C: %w", op, err)
		}

		if p.Beta == 0 {
			cb = nil
		}
	}

	// Element strides of op(A) and op(B) in row/column order.
	g := gemmGeom{m: m, k: k, n: n, aRow: k, aCol: 1, bRow: n, bCol: 1}
	if p.TransA {
		g.aRow, g.aCol = 1, m
	}

	if p.TransB {
		g.bRow, g.bCol = 1, k
	}

	switch a.DType() {
	case tensor.Float16, tensor.Float32, tensor.Float64:
		x, err := toFloat64(op, a)
		if err != nil {
			return nil, err
		}

		y, err := toFloat64(op, b)
		if err != nil {
			return nil, err
		}

		var z []float64
		if cb != nil {
			if z, err = toFloat64(op, cb); err != nil {
				return nil, err
			}
		}

		return fromFloat64(op, a.DType(), outShape, gemm(x, y, z, g, p.Alpha, p.Beta))
	case tensor.Int32:
		return wrap(outShape, gemmInt[int32](a, b, cb, g, p))
	case tensor.Int64:
		return wrap(outShape, gemmInt[int64](a, b, cb, g, p))
	case tensor.Uint32:
		return wrap(outShape, gemmInt[uint32](a, b, cb, g, p))
	case tensor.Uint64:
		return wrap(outShape, gemmInt[uint64](a, b, cb, g, p))
	}

	return nil, unsupported(op, a.DType())
}

type gemmGeom struct {
	m, k, n    int64
	aRow, aCol int64
	bRow, bCol int64
}

// gemmInt scales by alpha and beta converted to T, so fractional factors
// truncate toward zero.
func gemmInt[T intT](a, b, c *tensor.Tensor, g gemmGeom, p GemmParams) []T {
	var z []T
	if c != nil {
		z = values[T](c)
	}

	return gemm(values[T](a), values[T](b), z, g, T(p.Alpha), T(p.Beta))
}

func gemm[T numericT](a, b, c []T, g gemmGeom, alpha, beta T) []T {
	m, k, n := g.m, g.k, g.n
	out := make([]T, m*n)

	tensor.ParallelFor(int(m), int(k*n), func(lo, hi int) {
		for i := int64(lo); i < int64(hi); i++ {
			for j := range n {
				var acc T
				for kk := range k {
					acc += a[i*g.aRow+kk*g.aCol] * b[kk*g.bRow+j*g.bCol]
				}

				y := alpha * acc
				if c != nil {
					y += beta * c[i*n+j]
				}

				out[i*n+j] = y
			}
		}
	})

	return out
}

type matmulGeom struct {
	outShape []int64
	batch    *tensor.Broadcast
	m, k, n  int64
}

// MatMul is NumPy matmul: batch dimensions broadcast, a 1-D A is treated as
// a row and a 1-D B as a column, and the promoted dimension is dropped.
func MatMul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	const op = "MatMul"

	if err := requireInput(op, "A", a); err != nil {
		return nil, err
	}

	if err := requireInput(op, "B", b); err != nil {
		return nil, err
	}

	if err := sameDType(op, a, b); err != nil {
		return nil, err
	}

	if a.Rank() == 0 || b.Rank() == 0 {
		return nil, fmt.Errorf("ops: %s: scalar operands are not allowed: %w", op, tensor.ErrShapeMismatch)
	}

	aShape, bShape := a.Shape(), b.Shape()

	aVec, bVec := len(aShape) == 1, len(bShape) == 1
	if aVec {
		aShape = []int64{1, aShape[0]}
	}

	if bVec {
		bShape = []int64{bShape[0], 1}
	}

	ar, br := len(aShape), len(bShape)
	g := &matmulGeom{m: aShape[ar-2], k: aShape[ar-1], n: bShape[br-1]}

	if bShape[br-2] != g.k {
		return nil, fmt.Errorf("ops: %s: shapes %v and %v: inner dimensions %d and %d differ: %w", op, a.Shape(), b.Shape(), g.k, bShape[br-2], tensor.ErrShapeMismatch)
	}

	batch, err := tensor.NewBroadcast(aShape[:ar-2], bShape[:br-2])
	if err != nil {
		return nil, fmt.Errorf("ops: %s: batch dimensions: %w", op, err)
	}

	g.batch = batch

	g.outShape = batch.Shape()
	if !aVec {
		g.outShape = append(g.outShape, g.m)
	}

	if !bVec {
		g.outShape = append(g.outShape, g.n)
	}

	if _, err := outputSize(op, g.outShape); err != nil {
		return nil, err
	}

	switch a.DType() {
	case tensor.Float16, tensor.Float32, tensor.Float64:
		x, err := toFloat64(op, a)
		if err != nil {
			return nil, err
		}

		y, err := toFloat64(op, b)
		if err != nil {
			return nil, err
		}

		return fromFloat64(op, a.DType(), g.outShape, matmulBatched(x, y, g))
	case tensor.Int32:
		return wrap(g.outShape, matmulBatched(values[int32](a), values[int32](b), g))
	case tensor.Int64:
		return wrap(g.outShape, matmulBatched(values[int64](a), values[int64](b), g))
	case tensor.Uint32:
		return wrap(g.outShape, matmulBatched(values[uint32](a), values[uint32](b), g))
	case tensor.Uint64:
		return wrap(g.outShape, matmulBatched(values[uint64](a), values[uint64](b), g))
	}

	return nil, unsupported(op, a.DType())
}

func matmulBatched[T numericT](a, b []T, g *matmulGeom) []T {
	batches := g.batch.Len()
	aOff := make([]int64, batches)
	bOff := make([]int64, batches)

	g.batch.Range(0, batches, func(i int, offs []int64) {
		aOff[i] = offs[0] * g.m * g.k
		bOff[i] = offs[1] * g.k * g.n
	})

	m, k, n := g.m, g.k, g.n
	out := make([]T, int64(batches)*m*n)

	tensor.ParallelFor(batches*int(m), int(k*n), func(lo, hi int) {
		for r := int64(lo); r < int64(hi); r++ {
			bi, i := r/m, r%m
			aRow := aOff[bi] + i*k
			bBase := bOff[bi]

			for j := range n {
				var acc T
				for kk := range k {
					acc += a[aRow+kk] * b[bBase+kk*n+j]
				}

				out[r*n+j] = acc
			}
		}
	})

	return out
}
