package conformance

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// ErrMismatch reports an output that differs from its expected value.
var ErrMismatch = errors.New("output mismatch")

// Compare checks got against want: structure first, then dtype and shape,
// then values. Integers and bools must match exactly. Floats match when
// |g-w| <= tol.Abs + tol.Rel*|w|; NaN matches NaN and infinities must be
// identical.
func Compare(got, want tensor.Value, tol ops.Tolerance) error {
	return compareValues(got, want, func(g, w *tensor.Tensor) error {
		return compareTensor(g, w, tol)
	})
}

// CompareDomain checks only structure, dtype, shape and that every value of
// got lies in the value domain of want. It is used for operators that draw
// from a random source.
func CompareDomain(got, want tensor.Value) error {
	return compareValues(got, want, compareDomain)
}

func compareValues(got, want tensor.Value, leaf func(g, w *tensor.Tensor) error) error {
	if got == nil || want == nil {
		if got == nil && want == nil {
			return nil
		}

		return fmt.Errorf("conformance: got %v, want %v: %w", kindOf(got), kindOf(want), ErrMismatch)
	}

	if got.ValueKind() != want.ValueKind() {
		return fmt.Errorf("conformance: got a %v, want a %v: %w", got.ValueKind(), want.ValueKind(), ErrMismatch)
	}

	switch w := want.(type) {
	case *tensor.Tensor:
		return leaf(got.(*tensor.Tensor), w)
	case *tensor.Sequence:
		g := got.(*tensor.Sequence)
		if g.Len() != w.Len() {
			return fmt.Errorf("conformance: sequence length %d, want %d: %w", g.Len(), w.Len(), ErrMismatch)
		}

		gs, ws := g.Tensors(), w.Tensors()
		for i := range ws {
			if err := leaf(gs[i], ws[i]); err != nil {
				return fmt.Errorf("sequence element %d: %w", i, err)
			}
		}

		return nil
	case *tensor.Optional:
		g := got.(*tensor.Optional)
		if g.HasValue() != w.HasValue() {
			return fmt.Errorf("conformance: optional has value %v, want %v: %w", g.HasValue(), w.HasValue(), ErrMismatch)
		}

		if !w.HasValue() {
			return nil
		}

		return compareValues(g.Value(), w.Value(), leaf)
	}

	return fmt.Errorf("conformance: cannot compare %T", want)
}

func kindOf(v tensor.Value) string {
	if v == nil {
		return "nothing"
	}

	return v.ValueKind().String()
}

func compareHeader(got, want *tensor.Tensor) error {
	if got.DType() != want.DType() {
		return fmt.Errorf("conformance: dtype %v, want %v: %w", got.DType(), want.DType(), ErrMismatch)
	}

	if !slices.Equal(got.Shape(), want.Shape()) {
		return fmt.Errorf("conformance: shape %v, want %v: %w", got.Shape(), want.Shape(), ErrMismatch)
	}

	return nil
}

func compareTensor(got, want *tensor.Tensor, tol ops.Tolerance) error {
	if err := compareHeader(got, want); err != nil {
		return err
	}

	if !want.DType().IsFloat() {
		if tensor.Equal(got, want) {
			return nil
		}

		for i := range want.Len() {
			g, _ := got.At(unravel(want.Shape(), i)...)
			w, _ := want.At(unravel(want.Shape(), i)...)

			if g != w {
				return fmt.Errorf("conformance: element %d is %v, want %v: %w", i, g, w, ErrMismatch)
			}
		}

		return nil
	}

	for i := range want.Len() {
		g, w := got.Float64At(i), want.Float64At(i)
		if !floatClose(g, w, tol) {
			return fmt.Errorf("conformance: element %d is %g, want %g (abs %g, rel %g): %w", i, g, w, tol.Abs, tol.Rel, ErrMismatch)
		}
	}

	return nil
}

func floatClose(g, w float64, tol ops.Tolerance) bool {
	switch {
	case math.IsNaN(w) || math.IsNaN(g):
		return math.IsNaN(w) && math.IsNaN(g)
	case math.IsInf(w, 0) || math.IsInf(g, 0):
		return g == w
	}

	return math.Abs(g-w) <= tol.Abs+tol.Rel*math.Abs(w)
}

// compareDomain accepts 0, 1 and any value that occurs in want.
func compareDomain(got, want *tensor.Tensor) error {
	if err := compareHeader(got, want); err != nil {
		return err
	}

	domain := map[float64]bool{0: true, 1: true}
	for i := range want.Len() {
		domain[want.Float64At(i)] = true
	}

	for i := range got.Len() {
		if g := got.Float64At(i); !domain[g] {
			return fmt.Errorf("conformance: element %d is %g, outside the expected domain: %w", i, g, ErrMismatch)
		}
	}

	return nil
}

func unravel(shape []int64, linear int) []int64 {
	coord := make([]int64, len(shape))
	tensor.Unravel(int64(linear), shape, tensor.Strides(shape), coord)

	return coord
}
