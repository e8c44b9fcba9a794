package ops

import (
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogicalBroadcast(t *testing.T) {
	a := mustTensorT(t, []bool{true, false, true, true}, []int64{2, 2})
	b := mustTensorT(t, []bool{true, false}, []int64{2})

	out, err := And(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2}, out.Shape())
	assert.Equal(t, []bool{true, false, true, false}, valuesT[bool](t, out))

	out, err = Or(a, b)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true}, valuesT[bool](t, out))

	out, err = Xor(a, b)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, true}, valuesT[bool](t, out))
}

func TestLogicalErrors(t *testing.T) {
	_, err := And(mustTensorT(t, []bool{true, false, true}, []int64{3}), mustTensorT(t, []bool{true, false}, []int64{2}))
	require.ErrorIs(t, err, tensor.ErrBroadcast)

	_, err = Xor(mustTensorT(t, []bool{true}, []int64{1}), mustTensorT(t, []uint8{1}, []int64{1}))
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)

	_, err = And(mustTensorT(t, []float32{1}, []int64{1}), mustTensorT(t, []float32{1}, []int64{1}))
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestBitwiseUnsigned(t *testing.T) {
	out, err := Xor(mustTensorT(t, []uint8{0b1100}, []int64{1}), mustTensorT(t, []uint8{0b1010}, []int64{1}))
	require.NoError(t, err)
	assert.Equal(t, []uint8{0b0110}, valuesT[uint8](t, out))
}

func TestBitShift(t *testing.T) {
	x := mustTensorT(t, []uint8{16, 4, 1}, []int64{3})
	y := mustTensorT(t, []uint8{1, 2, 3}, []int64{3})

	left, err := BitShift(x, y, true)
	require.NoError(t, err)
	assert.Equal(t, []uint8{32, 16, 8}, valuesT[uint8](t, left))

	right, err := BitShift(x, y, false)
	require.NoError(t, err)
	assert.Equal(t, []uint8{8, 1, 0}, valuesT[uint8](t, right))

	wide, err := BitShift(mustTensorT(t, []uint32{1}, []int64{1}), mustTensorT(t, []uint32{40}, []int64{1}), true)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, valuesT[uint32](t, wide))

	_, err = BitShift(mustTensorT(t, []int32{1}, []int64{1}), mustTensorT(t, []int32{1}, []int64{1}), true)
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestArithmetic(t *testing.T) {
	a := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	b := mustTensorT(t, []float32{10, 20, 30}, []int64{1, 3})

	out, err := Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, valuesT[float32](t, out))

	out, err = Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 40, 90, 40, 100, 180}, valuesT[float32](t, out))

	out, err = Sub(b, a)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 18, 27, 6, 15, 24}, valuesT[float32](t, out))

	out, err = Div(mustTensorT(t, []int32{7, 7, -7}, []int64{3}), mustTensorT(t, []int32{-2, 0, 2}, []int64{3}))
	require.NoError(t, err)
	assert.Equal(t, []int32{-3, 0, -3}, valuesT[int32](t, out))
}
