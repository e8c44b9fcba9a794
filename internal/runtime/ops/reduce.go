package ops

import (
	"math"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

type reduceKind int

const (
	reduceMin reduceKind = iota
	reduceMax
	reduceSum
	reduceMean
	reduceProd
)

var reduceNames = [...]string{
	reduceMin:  "ReduceMin",
	reduceMax:  "ReduceMax",
	reduceSum:  "ReduceSum",
	reduceMean: "ReduceMean",
	reduceProd: "ReduceProd",
}

// ReduceOptions selects the reduced axes.
//
// A nil Axes reduces every axis, or returns the input unchanged when
// NoopWithEmptyAxes is set. A non-nil empty Axes is always the identity.
type ReduceOptions struct {
	Axes              []int64
	KeepDims          bool
	NoopWithEmptyAxes bool
}

// Reductions over a zero-length axis return the identity of the operation:
// +Inf or the type maximum for min, -Inf or the type minimum for max, 0 for
// sum, 1 for prod and NaN (0 for integers) for mean.

func ReduceMin(x *tensor.Tensor, opts ReduceOptions) (*tensor.Tensor, error) {
	return reduce(reduceMin, x, opts)
}

func ReduceMax(x *tensor.Tensor, opts ReduceOptions) (*tensor.Tensor, error) {
	return reduce(reduceMax, x, opts)
}

func ReduceSum(x *tensor.Tensor, opts ReduceOptions) (*tensor.Tensor, error) {
	return reduce(reduceSum, x, opts)
}

func ReduceMean(x *tensor.Tensor, opts ReduceOptions) (*tensor.Tensor, error) {
	return reduce(reduceMean, x, opts)
}

func ReduceProd(x *tensor.Tensor, opts ReduceOptions) (*tensor.Tensor, error) {
	return reduce(reduceProd, x, opts)
}

// reducePlan maps each output element to a base offset in the input and
// lists the offsets of the reduced sub-space in row-major order. Every
// output folds its inputs in exactly that order.
type reducePlan struct {
	outShape []int64
	bases    []int64
	inner    []int64
}

func newReducePlan(op string, shape []int64, axes []int, keepDims bool) (*reducePlan, error) {
	rank := len(shape)

	reduced := make([]bool, rank)
	for _, a := range axes {
		reduced[a] = true
	}

	inStrides := tensor.Strides(shape)

	keepShape := make([]int64, rank)
	outShape := make([]int64, 0, rank)

	var innerDims, innerStrides []int64

	for d := range rank {
		if reduced[d] {
			keepShape[d] = 1
			innerDims = append(innerDims, shape[d])
			innerStrides = append(innerStrides, inStrides[d])

			if keepDims {
				outShape = append(outShape, 1)
			}

			continue
		}

		keepShape[d] = shape[d]
		outShape = append(outShape, shape[d])
	}

	outer, err := outputSize(op, keepShape)
	if err != nil {
		return nil, err
	}

	// With no outputs the reduced sub-space is never read and may be
	// larger than the element limit.
	if outer == 0 {
		return &reducePlan{outShape: outShape}, nil
	}

	keepStrides := tensor.Strides(keepShape)
	coord := make([]int64, rank)

	bases := make([]int64, outer)
	for o := range bases {
		tensor.Unravel(int64(o), keepShape, keepStrides, coord)

		var off int64
		for d := range rank {
			off += coord[d] * inStrides[d]
		}

		bases[o] = off
	}

	return &reducePlan{
		outShape: outShape,
		bases:    bases,
		inner:    subspaceOffsets(innerDims, innerStrides),
	}, nil
}

// subspaceOffsets enumerates dims in row-major order and returns the flat
// offset of each position under strides.
func subspaceOffsets(dims, strides []int64) []int64 {
	n := shapeProduct(dims)
	if n == 0 {
		return nil
	}

	out := make([]int64, 0, n)
	coord := make([]int64, len(dims))

	var off int64

	for range n {
		out = append(out, off)

		for d := len(dims) - 1; d >= 0; d-- {
			coord[d]++
			off += strides[d]

			if coord[d] < dims[d] {
				break
			}

			off -= strides[d] * coord[d]
			coord[d] = 0
		}
	}

	return out
}

func reduce(kind reduceKind, x *tensor.Tensor, opts ReduceOptions) (*tensor.Tensor, error) {
	name := reduceNames[kind]
	if err := requireInput(name, "data", x); err != nil {
		return nil, err
	}

	var axes []int

	switch {
	case opts.Axes == nil && opts.NoopWithEmptyAxes:
		return x, nil
	case opts.Axes == nil:
		axes = tensor.AllAxes(x.Rank())
	case len(opts.Axes) == 0:
		return x, nil
	default:
		var err error
		if axes, err = tensor.NormalizeAxes(opts.Axes, x.Rank()); err != nil {
			return nil, err
		}
	}

	ts, half, err := widenHalf(x)
	if err != nil {
		return nil, err
	}

	x = ts[0]

	plan, err := newReducePlan(name, x.Shape(), axes, opts.KeepDims)
	if err != nil {
		return nil, err
	}

	var data any

	switch x.DType() {
	case tensor.Float32:
		data = reduceFloat(kind, values[float32](x), plan)
	case tensor.Float64:
		data = reduceFloat(kind, values[float64](x), plan)
	case tensor.Int8:
		data = reduceInt(kind, values[int8](x), plan)
	case tensor.Int16:
		data = reduceInt(kind, values[int16](x), plan)
	case tensor.Int32:
		data = reduceInt(kind, values[int32](x), plan)
	case tensor.Int64:
		data = reduceInt(kind, values[int64](x), plan)
	case tensor.Uint8:
		data = reduceInt(kind, values[uint8](x), plan)
	case tensor.Uint16:
		data = reduceInt(kind, values[uint16](x), plan)
	case tensor.Uint32:
		data = reduceInt(kind, values[uint32](x), plan)
	case tensor.Uint64:
		data = reduceInt(kind, values[uint64](x), plan)
	default:
		return nil, unsupported(name, x.DType())
	}

	out, err := wrap(plan.outShape, data)

	return narrowHalf(out, half, err)
}

func reduceFloat[T floatT](kind reduceKind, src []T, p *reducePlan) []T {
	out := make([]T, len(p.bases))

	tensor.ParallelFor(len(out), len(p.inner)+1, func(lo, hi int) {
		for o := lo; o < hi; o++ {
			out[o] = T(foldFloat(kind, src, p.bases[o], p.inner))
		}
	})

	return out
}

// foldFloat accumulates in float64 so float32 sums do not drift with the
// reduction length. NaN propagates through min and max.
func foldFloat[T floatT](kind reduceKind, src []T, base int64, inner []int64) float64 {
	switch kind {
	case reduceMin, reduceMax:
		acc := math.Inf(1)
		if kind == reduceMax {
			acc = math.Inf(-1)
		}

		for _, off := range inner {
			v := float64(src[base+off])
			if math.IsNaN(v) {
				return v
			}

			if (kind == reduceMin && v < acc) || (kind == reduceMax && v > acc) {
				acc = v
			}
		}

		return acc
	case reduceProd:
		acc := 1.0
		for _, off := range inner {
			acc *= float64(src[base+off])
		}

		return acc
	}

	acc := 0.0
	for _, off := range inner {
		acc += float64(src[base+off])
	}

	if kind == reduceMean {
		acc /= float64(len(inner))
	}

	return acc
}

func reduceInt[T intT](kind reduceKind, src []T, p *reducePlan) []T {
	out := make([]T, len(p.bases))
	lowest, highest := intLimits[T]()

	tensor.ParallelFor(len(out), len(p.inner)+1, func(lo, hi int) {
		for o := lo; o < hi; o++ {
			base := p.bases[o]

			switch kind {
			case reduceMin:
				acc := highest
				for _, off := range p.inner {
					acc = min(acc, src[base+off])
				}

				out[o] = acc
			case reduceMax:
				acc := lowest
				for _, off := range p.inner {
					acc = max(acc, src[base+off])
				}

				out[o] = acc
			case reduceProd:
				acc := T(1)
				for _, off := range p.inner {
					acc *= src[base+off]
				}

				out[o] = acc
			case reduceSum:
				var acc T
				for _, off := range p.inner {
					acc += src[base+off]
				}

				out[o] = acc
			case reduceMean:
				if len(p.inner) == 0 {
					continue
				}

				var acc float64
				for _, off := range p.inner {
					acc += float64(src[base+off])
				}

				out[o] = T(math.Trunc(acc / float64(len(p.inner))))
			}
		}
	})

	return out
}

func intLimits[T intT]() (lowest, highest T) {
	var zero T

	switch any(zero).(type) {
	case int8:
		return any(int8(math.MinInt8)).(T), any(int8(math.MaxInt8)).(T)
	case int16:
		return any(int16(math.MinInt16)).(T), any(int16(math.MaxInt16)).(T)
	case int32:
		return any(int32(math.MinInt32)).(T), any(int32(math.MaxInt32)).(T)
	case int64:
		return any(int64(math.MinInt64)).(T), any(int64(math.MaxInt64)).(T)
	}

	// Unsigned: all bits set is the maximum.
	return 0, ^zero
}
