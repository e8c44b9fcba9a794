package ops

import (
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/stretchr/testify/require"
)

func seqDataT(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((i%17)-8) / 17
	}

	return out
}

func mustTensorT[T tensor.Element](t *testing.T, data []T, shape []int64) *tensor.Tensor {
	t.Helper()

	tt, err := tensor.New(data, shape)
	require.NoError(t, err, "tensor.New(%v, %v)", data, shape)

	return tt
}

func valuesT[T tensor.Element](t *testing.T, x *tensor.Tensor) []T {
	t.Helper()

	v, err := tensor.Values[T](x)
	require.NoError(t, err)

	return v
}

func rangeF64(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}

	return out
}
