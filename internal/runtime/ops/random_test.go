package ops

import (
	"math/rand/v2"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBernoulliExtremes(t *testing.T) {
	x := mustTensorT(t, []float32{0, 1, 0, 1, -0.5, 2}, []int64{2, 3})

	out, err := Bernoulli(x, tensor.Undefined, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, out.DType())
	assert.Equal(t, []int64{2, 3}, out.Shape())
	assert.Equal(t, []float32{0, 1, 0, 1, 0, 1}, valuesT[float32](t, out))
}

func TestBernoulliSeeded(t *testing.T) {
	p := make([]float64, 256)
	for i := range p {
		p[i] = 0.5
	}

	x := mustTensorT(t, p, []int64{256})

	a, err := Bernoulli(x, tensor.Bool, rand.New(rand.NewPCG(7, 0)))
	require.NoError(t, err)

	b, err := Bernoulli(x, tensor.Bool, rand.New(rand.NewPCG(7, 0)))
	require.NoError(t, err)

	assert.Equal(t, tensor.Bool, a.DType())
	assert.True(t, tensor.Equal(a, b), "equal seeds must give equal draws")

	ones := 0
	for _, v := range valuesT[bool](t, a) {
		if v {
			ones++
		}
	}

	assert.Greater(t, ones, 64)
	assert.Less(t, ones, 192)
}

func TestBernoulliErrors(t *testing.T) {
	x := mustTensorT(t, []float32{0.5}, []int64{1})

	_, err := Bernoulli(x, tensor.Float32, nil)
	require.Error(t, err)

	_, err = Bernoulli(mustTensorT(t, []int32{1}, []int64{1}), tensor.Int32, rand.New(rand.NewPCG(1, 1)))
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}
