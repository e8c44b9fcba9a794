package ops

import (
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convInput(t *testing.T) (*tensor.Tensor, *tensor.Tensor) {
	t.Helper()

	x := make([]float32, 25)
	for i := range x {
		x[i] = float32(i)
	}

	w := make([]float32, 9)
	for i := range w {
		w[i] = 1
	}

	return mustTensorT(t, x, []int64{1, 1, 5, 5}), mustTensorT(t, w, []int64{1, 1, 3, 3})
}

func TestConvPadded(t *testing.T) {
	x, w := convInput(t)

	out, err := Conv(x, w, nil, ConvParams{Pads: []int64{1, 1, 1, 1}, KernelShape: []int64{3, 3}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 5, 5}, out.Shape())
	assert.Equal(t, []float32{
		12, 21, 27, 33, 24,
		33, 54, 63, 72, 51,
		63, 99, 108, 117, 81,
		93, 144, 153, 162, 111,
		72, 111, 117, 123, 84,
	}, valuesT[float32](t, out))
}

func TestConvNoPadding(t *testing.T) {
	x, w := convInput(t)

	out, err := Conv(x, w, nil, ConvParams{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 3, 3}, out.Shape())
	assert.Equal(t, []float32{54, 63, 72, 99, 108, 117, 144, 153, 162}, valuesT[float32](t, out))
}

func TestConvStrided(t *testing.T) {
	x, w := convInput(t)

	out, err := Conv(x, w, nil, ConvParams{Pads: []int64{1, 1, 1, 1}, Strides: []int64{2, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 3, 3}, out.Shape())
	assert.Equal(t, []float32{12, 27, 24, 63, 108, 81, 72, 117, 84}, valuesT[float32](t, out))
}

func TestConvAutoPadSameUpper(t *testing.T) {
	x, w := convInput(t)

	out, err := Conv(x, w, nil, ConvParams{AutoPad: "SAME_UPPER"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 5, 5}, out.Shape())
	assert.Equal(t, float32(12), valuesT[float32](t, out)[0])

	_, err = Conv(x, w, nil, ConvParams{AutoPad: "SIDEWAYS"})
	require.Error(t, err)
}

func TestConv1DWithBias(t *testing.T) {
	x := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	w := mustTensorT(t, []float32{1, 1}, []int64{1, 1, 2})

	out, err := Conv(x, w, nil, ConvParams{})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 5, 7}, valuesT[float32](t, out))

	b := mustTensorT(t, []float32{0.5}, []int64{1})

	out, err = Conv(x, w, b, ConvParams{})
	require.NoError(t, err)
	assert.Equal(t, []float32{3.5, 5.5, 7.5}, valuesT[float32](t, out))
}

func TestConvGrouped(t *testing.T) {
	x := mustTensorT(t, []float32{1, 2, 3, 4, 10, 20, 30, 40}, []int64{1, 2, 4})
	w := mustTensorT(t, []float32{1, 1, 1, 1}, []int64{2, 1, 2})

	out, err := Conv(x, w, nil, ConvParams{Group: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, out.Shape())
	assert.Equal(t, []float32{3, 5, 7, 30, 50, 70}, valuesT[float32](t, out))
}

func TestConvShapeErrors(t *testing.T) {
	x, w := convInput(t)

	_, err := Conv(x, w, nil, ConvParams{KernelShape: []int64{2, 2}})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = Conv(x, w, nil, ConvParams{Group: 2})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = Conv(x, w, nil, ConvParams{Strides: []int64{1}})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	big := mustTensorT(t, make([]float32, 36), []int64{1, 1, 6, 6})

	_, err = Conv(x, big, nil, ConvParams{})
	require.ErrorIs(t, err, tensor.ErrInvalidShape)
}

func TestConvParallelMatchesSequential(t *testing.T) {
	orig := tensor.Workers()
	defer tensor.SetWorkers(orig)

	x := mustTensorT(t, seqDataT(1*16*64), []int64{1, 16, 64})
	w := mustTensorT(t, seqDataT(32*16*3), []int64{32, 16, 3})
	p := ConvParams{Pads: []int64{1, 1}, Dilations: []int64{2}}

	tensor.SetWorkers(1)
	want, err := Conv(x, w, nil, p)
	require.NoError(t, err)

	tensor.SetWorkers(4)
	got, err := Conv(x, w, nil, p)
	require.NoError(t, err)

	assert.True(t, tensor.Equal(want, got))
}
