package ops

import (
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatherElements(t *testing.T) {
	data := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{2, 2})
	indices := mustTensorT(t, []int64{0, 0, 1, 0}, []int64{2, 2})

	out, err := GatherElements(data, indices, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 4, 3}, valuesT[float32](t, out))

	data = mustTensorT(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, []int64{3, 3})
	indices = mustTensorT(t, []int32{1, 2, 0, 2, 0, 0}, []int64{2, 3})

	out, err = GatherElements(data, indices, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, out.Shape())
	assert.Equal(t, []float32{4, 8, 3, 7, 2, 3}, valuesT[float32](t, out))
}

func TestGatherElementsNegativeIndices(t *testing.T) {
	data := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, []int64{3, 3})
	indices := mustTensorT(t, []int64{-1, -2, 0, -2, 0, 0}, []int64{2, 3})

	out, err := GatherElements(data, indices, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 5, 3, 4, 2, 3}, valuesT[float32](t, out))
}

func TestGatherElementsErrors(t *testing.T) {
	data := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{2, 2})

	_, err := GatherElements(data, mustTensorT(t, []int64{2, 0, 0, 0}, []int64{2, 2}), 1)
	require.ErrorIs(t, err, tensor.ErrIndexOutOfRange)

	_, err = GatherElements(data, mustTensorT(t, []int64{-3, 0, 0, 0}, []int64{2, 2}), 1)
	require.ErrorIs(t, err, tensor.ErrIndexOutOfRange)

	_, err = GatherElements(data, mustTensorT(t, []int64{0, 0}, []int64{2}), 1)
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = GatherElements(data, mustTensorT(t, []int64{0, 0, 0, 0}, []int64{2, 2}), 2)
	require.ErrorIs(t, err, tensor.ErrAxisOutOfRange)

	_, err = GatherElements(data, mustTensorT(t, []float32{0, 0, 0, 0}, []int64{2, 2}), 0)
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestGather(t *testing.T) {
	data := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6}, []int64{3, 2})
	indices := mustTensorT(t, []int64{0, 1, 1, -1}, []int64{2, 2})

	out, err := Gather(data, indices, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2, 2}, out.Shape())
	assert.Equal(t, []float32{1, 2, 3, 4, 3, 4, 5, 6}, valuesT[float32](t, out))

	out, err = Gather(data, mustTensorT(t, []int32{1}, []int64{1}), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, out.Shape())
	assert.Equal(t, []float32{2, 4, 6}, valuesT[float32](t, out))
}
