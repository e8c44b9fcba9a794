package tensor

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// Tensor is a dense, row-major, immutable n-dimensional array. A rank-0
// tensor is a scalar holding exactly one element.
type Tensor struct {
	dtype DType
	shape []int64
	data  any
}

// New creates a tensor from data and shape. Both slices are copied. A data
// length that disagrees with the shape fails with ErrShapeMismatch.
func New[T Element](data []T, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements): %w", len(data), shape, total, ErrShapeMismatch)
	}

	return &Tensor{
		dtype: DTypeOf[T](),
		shape: append([]int64{}, shape...),
		data:  append([]T(nil), data...),
	}, nil
}

// Wrap creates a tensor that takes ownership of data, which must be one of
// the slice types listed by Element. The caller must not modify data after
// this call.
func Wrap(data any, shape []int64) (*Tensor, error) {
	dt := dtypeOfSlice(data)
	if dt == Undefined {
		return nil, fmt.Errorf("tensor: cannot wrap %T: %w", data, ErrUnsupportedDType)
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if n := sliceLen(data); n != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements): %w", n, shape, total, ErrShapeMismatch)
	}

	return &Tensor{dtype: dt, shape: append([]int64{}, shape...), data: data}, nil
}

// newOwned skips validation; len(data) must match shape.
func newOwned(dtype DType, data any, shape []int64) *Tensor {
	return &Tensor{dtype: dtype, shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros(dtype DType, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	data, err := makeSlice(dtype, total)
	if err != nil {
		return nil, err
	}

	return newOwned(dtype, data, append([]int64{}, shape...)), nil
}

// Full creates a tensor of the given shape with every element set to value.
func Full[T Element](shape []int64, value T) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	data := make([]T, total)
	for i := range data {
		data[i] = value
	}

	return newOwned(DTypeOf[T](), data, append([]int64{}, shape...)), nil
}

// Scalar creates a rank-0 tensor.
func Scalar[T Element](v T) *Tensor {
	return newOwned(DTypeOf[T](), []T{v}, []int64{})
}

// Values returns the tensor's elements as []T without copying. Callers must
// treat the slice as read-only.
func Values[T Element](t *Tensor) ([]T, error) {
	if t == nil {
		return nil, errors.New("tensor: values of nil tensor")
	}

	v, ok := t.data.([]T)
	if !ok {
		return nil, fmt.Errorf("tensor: requested %v values from %v tensor: %w", DTypeOf[T](), t.dtype, ErrUnsupportedDType)
	}

	return v, nil
}

func (t *Tensor) ValueKind() Kind { return KindTensor }

func (t *Tensor) DType() DType {
	if t == nil {
		return Undefined
	}

	return t.dtype
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64{}, t.shape...)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Dim returns the size of dimension i, which must be in range.
func (t *Tensor) Dim(i int) int64 { return t.shape[i] }

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t == nil {
		return 0
	}

	return sliceLen(t.data)
}

// RawData returns the underlying typed slice.
// Callers must treat it as read-only.
func (t *Tensor) RawData() any {
	if t == nil {
		return nil
	}

	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return newOwned(t.dtype, cloneSlice(t.data), append([]int64{}, t.shape...))
}

// Reshape returns a tensor with a new shape and the same values.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != t.Len() {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements): %w", t.shape, t.Len(), shape, total, ErrInvalidShape)
	}

	// Data is immutable so the backing slice can be shared.
	return newOwned(t.dtype, t.data, append([]int64{}, shape...)), nil
}

// At returns the element at the given multi-index.
func (t *Tensor) At(index ...int64) (any, error) {
	if t == nil {
		return nil, errors.New("tensor: at on nil tensor")
	}

	if len(index) != len(t.shape) {
		return nil, fmt.Errorf("tensor: index %v has rank %d, tensor rank %d: %w", index, len(index), len(t.shape), ErrIndexOutOfRange)
	}

	for i, idx := range index {
		if idx < 0 || idx >= t.shape[i] {
			return nil, fmt.Errorf("tensor: index %v out of range for shape %v: %w", index, t.shape, ErrIndexOutOfRange)
		}
	}

	off := coordToLinear(index, computeStrides(t.shape))

	return elementAt(t.data, int(off)), nil
}

// Float64At returns the flat element i converted to float64. Bools map to
// 0 and 1.
func (t *Tensor) Float64At(i int) float64 {
	switch d := t.data.(type) {
	case []float16.Float16:
		return float64(d[i].Float32())
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	case []int8:
		return float64(d[i])
	case []int16:
		return float64(d[i])
	case []int32:
		return float64(d[i])
	case []int64:
		return float64(d[i])
	case []uint8:
		return float64(d[i])
	case []uint16:
		return float64(d[i])
	case []uint32:
		return float64(d[i])
	case []uint64:
		return float64(d[i])
	case []bool:
		if d[i] {
			return 1
		}
	}

	return 0
}

// Equal reports whether a and b have the same dtype, shape and bit-identical
// elements. NaN equals NaN.
func Equal(a, b *Tensor) bool {
	if a == nil || b == nil {
		return a == b
	}

	if a.dtype != b.dtype || !equalShape(a.shape, b.shape) {
		return false
	}

	switch x := a.data.(type) {
	case []float32:
		y := b.data.([]float32)
		for i := range x {
			if math.Float32bits(x[i]) != math.Float32bits(y[i]) && !(isNaN32(x[i]) && isNaN32(y[i])) {
				return false
			}
		}

		return true
	case []float64:
		y := b.data.([]float64)
		for i := range x {
			if math.Float64bits(x[i]) != math.Float64bits(y[i]) && !(math.IsNaN(x[i]) && math.IsNaN(y[i])) {
				return false
			}
		}

		return true
	case []float16.Float16:
		y := b.data.([]float16.Float16)
		for i := range x {
			if x[i] != y[i] && !(x[i].IsNaN() && y[i].IsNaN()) {
				return false
			}
		}

		return true
	}

	n := a.Len()
	for i := range n {
		if elementAt(a.data, i) != elementAt(b.data, i) {
			return false
		}
	}

	return true
}

func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%v%v", t.dtype, t.shape)

	n := t.Len()
	const preview = 8

	b.WriteString("[")

	for i := range min(n, preview) {
		if i > 0 {
			b.WriteString(" ")
		}

		fmt.Fprint(&b, elementAt(t.data, i))
	}

	if n > preview {
		b.WriteString(" ...")
	}

	b.WriteString("]")

	return b.String()
}

func isNaN32(v float32) bool { return v != v }

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func elementAt(data any, i int) any {
	switch d := data.(type) {
	case []float16.Float16:
		return d[i]
	case []float32:
		return d[i]
	case []float64:
		return d[i]
	case []int8:
		return d[i]
	case []int16:
		return d[i]
	case []int32:
		return d[i]
	case []int64:
		return d[i]
	case []uint8:
		return d[i]
	case []uint16:
		return d[i]
	case []uint32:
		return d[i]
	case []uint64:
		return d[i]
	case []bool:
		return d[i]
	}

	return nil
}

func sliceLen(data any) int {
	switch d := data.(type) {
	case []float16.Float16:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []int8:
		return len(d)
	case []int16:
		return len(d)
	case []int32:
		return len(d)
	case []int64:
		return len(d)
	case []uint8:
		return len(d)
	case []uint16:
		return len(d)
	case []uint32:
		return len(d)
	case []uint64:
		return len(d)
	case []bool:
		return len(d)
	}

	return 0
}

func cloneSlice(data any) any {
	switch d := data.(type) {
	case []float16.Float16:
		return append([]float16.Float16(nil), d...)
	case []float32:
		return append([]float32(nil), d...)
	case []float64:
		return append([]float64(nil), d...)
	case []int8:
		return append([]int8(nil), d...)
	case []int16:
		return append([]int16(nil), d...)
	case []int32:
		return append([]int32(nil), d...)
	case []int64:
		return append([]int64(nil), d...)
	case []uint8:
		return append([]uint8(nil), d...)
	case []uint16:
		return append([]uint16(nil), d...)
	case []uint32:
		return append([]uint32(nil), d...)
	case []uint64:
		return append([]uint64(nil), d...)
	case []bool:
		return append([]bool(nil), d...)
	}

	return nil
}
