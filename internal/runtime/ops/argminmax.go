package ops

import (
	"fmt"
	"math"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// ArgOptions configures ArgMax and ArgMin.
type ArgOptions struct {
	Axis            int64
	KeepDims        bool
	SelectLastIndex bool
}

// ArgMax returns int64 indices of the maximum along an axis. Ties resolve to
// the first occurrence, or the last with SelectLastIndex.
func ArgMax(x *tensor.Tensor, opts ArgOptions) (*tensor.Tensor, error) {
	return argReduce("ArgMax", x, opts, true)
}

// ArgMin is ArgMax for the minimum.
func ArgMin(x *tensor.Tensor, opts ArgOptions) (*tensor.Tensor, error) {
	return argReduce("ArgMin", x, opts, false)
}

func argReduce(name string, x *tensor.Tensor, opts ArgOptions, greater bool) (*tensor.Tensor, error) {
	if err := requireInput(name, "data", x); err != nil {
		return nil, err
	}

	axis, err := tensor.NormalizeAxis(opts.Axis, x.Rank())
	if err != nil {
		return nil, err
	}

	shape := x.Shape()

	n := shape[axis]
	if n == 0 {
		return nil, fmt.Errorf("ops: %s: axis %d has length 0: %w", name, axis, tensor.ErrInvalidShape)
	}

	plan, err := newReducePlan(name, shape, []int{axis}, opts.KeepDims)
	if err != nil {
		return nil, err
	}

	var out []int64

	switch d := x.RawData().(type) {
	case []float32:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, func(v float32) bool { return v != v })
	case []float64:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, math.IsNaN)
	case []int8:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	case []int16:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	case []int32:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	case []int64:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	case []uint8:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	case []uint16:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	case []uint32:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	case []uint64:
		out = argFold(d, plan, n, greater, opts.SelectLastIndex, nil)
	default:
		ts, _, err := widenHalf(x)
		if err != nil {
			return nil, err
		}

		if ts[0].DType() != tensor.Float32 {
			return nil, unsupported(name, x.DType())
		}

		out = argFold(values[float32](ts[0]), plan, n, greater, opts.SelectLastIndex, func(v float32) bool { return v != v })
	}

	return wrap(plan.outShape, out)
}

// argFold scans each reduced line with a strict comparison, so the first
// extreme wins. With last set the line is scanned in reverse and the winning
// position i of the reversed line is reflected back to n-1-i. The first NaN
// seen wins and ends the scan.
func argFold[T numericT](src []T, p *reducePlan, n int64, greater, last bool, isNaN func(T) bool) []int64 {
	out := make([]int64, len(p.bases))

	tensor.ParallelFor(len(out), int(n)+1, func(lo, hi int) {
		for o := lo; o < hi; o++ {
			base := p.bases[o]

			at := func(r int64) T {
				if last {
					return src[base+p.inner[n-1-r]]
				}

				return src[base+p.inner[r]]
			}

			best := int64(0)
			bestVal := at(0)

			if isNaN == nil || !isNaN(bestVal) {
				for r := int64(1); r < n; r++ {
					v := at(r)
					if isNaN != nil && isNaN(v) {
						best = r
						break
					}

					if (greater && v > bestVal) || (!greater && v < bestVal) {
						best, bestVal = r, v
					}
				}
			}

			if last {
				best = n - 1 - best
			}

			out[o] = best
		}
	})

	return out
}
