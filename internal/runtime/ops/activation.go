package ops

import (
	"fmt"
	"math"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// HardSigmoid computes max(0, min(1, alpha*x + beta)).
func HardSigmoid(x *tensor.Tensor, alpha, beta float64) (*tensor.Tensor, error) {
	return mapFloat("HardSigmoid", x, func(v float64) float64 {
		return math.Max(0, math.Min(1, alpha*v+beta))
	})
}

// ThresholdedRelu keeps values strictly greater than alpha and zeroes the
// rest.
func ThresholdedRelu(x *tensor.Tensor, alpha float64) (*tensor.Tensor, error) {
	return mapFloat("ThresholdedRelu", x, func(v float64) float64 {
		if v > alpha {
			return v
		}

		return 0
	})
}

// lineGeometry splits shape around axis into outer*n*inner. With flatten the
// axis and all following dimensions form one line (the legacy 2-D coercion).
func lineGeometry(shape []int64, axis int, flatten bool) (outer, n, inner int64) {
	outer = shapeProduct(shape[:axis])
	if flatten {
		return outer, shapeProduct(shape[axis:]), 1
	}

	return outer, shape[axis], shapeProduct(shape[axis+1:])
}

// forEachLine applies fn to every line of length n with stride inner.
func forEachLine(src []float64, outer, n, inner int64, fn func(in, out []float64)) []float64 {
	dst := make([]float64, len(src))
	if len(src) == 0 {
		return dst
	}

	tensor.ParallelFor(int(outer*inner), int(n)+1, func(lo, hi int) {
		in := make([]float64, n)
		out := make([]float64, n)

		for li := int64(lo); li < int64(hi); li++ {
			base := (li/inner)*n*inner + li%inner

			for k := range n {
				in[k] = src[base+k*inner]
			}

			fn(in, out)

			for k := range n {
				dst[base+k*inner] = out[k]
			}
		}
	})

	return dst
}

func lineKernel(op string, x *tensor.Tensor, axis int64, flatten bool, fn func(in, out []float64)) (*tensor.Tensor, error) {
	if err := requireInput(op, "input", x); err != nil {
		return nil, err
	}

	ax, err := tensor.NormalizeAxis(axis, x.Rank())
	if err != nil {
		return nil, err
	}

	src, err := toFloat64(op, x)
	if err != nil {
		return nil, err
	}

	shape := x.Shape()
	outer, n, inner := lineGeometry(shape, ax, flatten)

	return fromFloat64(op, x.DType(), shape, forEachLine(src, outer, n, inner, fn))
}

// Hardmax sets the first maximum of each line to 1 and everything else to 0.
// With coerce2D the input is viewed as a matrix split at axis, the behaviour
// of opsets before 13.
func Hardmax(x *tensor.Tensor, axis int64, coerce2D bool) (*tensor.Tensor, error) {
	return lineKernel("Hardmax", x, axis, coerce2D, func(in, out []float64) {
		best := 0

		for k, v := range in {
			out[k] = 0

			if math.IsNaN(in[best]) {
				continue
			}

			if v > in[best] || math.IsNaN(v) {
				best = k
			}
		}

		if len(out) > 0 {
			out[best] = 1
		}
	})
}

// Softmax normalizes exp(x - max) along axis. coerce2D has the same meaning
// as for Hardmax.
func Softmax(x *tensor.Tensor, axis int64, coerce2D bool) (*tensor.Tensor, error) {
	return lineKernel("Softmax", x, axis, coerce2D, func(in, out []float64) {
		maxV := math.Inf(-1)
		for _, v := range in {
			maxV = math.Max(maxV, v)
		}

		var sum float64

		for k, v := range in {
			out[k] = math.Exp(v - maxV)
			sum += out[k]
		}

		for k := range out {
			out[k] /= sum
		}
	})
}

// LayerNormResult holds the three LayerNormalization outputs.
type LayerNormResult struct {
	Y         *tensor.Tensor
	Mean      *tensor.Tensor
	InvStdDev *tensor.Tensor
}

// LayerNormalization normalizes over the dimensions from axis onward. scale
// and bias are optional and broadcast to x.shape[axis:]. Mean and InvStdDev
// keep the reduced dimensions with size 1.
func LayerNormalization(x, scale, bias *tensor.Tensor, axis int64, epsilon float64) (*LayerNormResult, error) {
	const op = "LayerNormalization"

	if err := requireInput(op, "X", x); err != nil {
		return nil, err
	}

	ax, err := tensor.NormalizeAxis(axis, x.Rank())
	if err != nil {
		return nil, err
	}

	shape := x.Shape()
	norm := shape[ax:]
	outer, n, _ := lineGeometry(shape, ax, true)

	src, err := toFloat64(op, x)
	if err != nil {
		return nil, err
	}

	load := func(name string, t *tensor.Tensor) ([]float64, error) {
		if t == nil {
			return nil, nil
		}

		if err := sameDType(op, x, t); err != nil {
			return nil, err
		}

		b, err := t.BroadcastTo(norm)
		if err != nil {
			return nil, fmt.Errorf("ops: %s: %s: %w", op, name, err)
		}

		return toFloat64(op, b)
	}

	w, err := load("scale", scale)
	if err != nil {
		return nil, err
	}

	bv, err := load("bias", bias)
	if err != nil {
		return nil, err
	}

	statShape := append([]int64{}, shape...)
	for d := ax; d < len(statShape); d++ {
		statShape[d] = 1
	}

	if _, err := outputSize(op, statShape); err != nil {
		return nil, err
	}

	y := make([]float64, len(src))
	means := make([]float64, outer)
	invs := make([]float64, outer)

	tensor.ParallelFor(int(outer), int(n)+1, func(lo, hi int) {
		for o := int64(lo); o < int64(hi); o++ {
			line := src[o*n : (o+1)*n]

			var mean float64
			for _, v := range line {
				mean += v
			}

			mean /= float64(n)

			var variance float64

			for _, v := range line {
				delta := v - mean
				variance += delta * delta
			}

			variance /= float64(n)
			inv := 1 / math.Sqrt(variance+epsilon)

			for i, v := range line {
				r := (v - mean) * inv
				if w != nil {
					r *= w[i]
				}

				if bv != nil {
					r += bv[i]
				}

				y[o*n+int64(i)] = r
			}

			means[o], invs[o] = mean, inv
		}
	})

	res := &LayerNormResult{}

	if res.Y, err = fromFloat64(op, x.DType(), shape, y); err != nil {
		return nil, err
	}

	if res.Mean, err = fromFloat64(op, x.DType(), statShape, means); err != nil {
		return nil, err
	}

	if res.InvStdDev, err = fromFloat64(op, x.DType(), statShape, invs); err != nil {
		return nil, err
	}

	return res, nil
}
