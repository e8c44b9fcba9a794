package engine

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTensor[T tensor.Element](t *testing.T, data []T, shape ...int64) *tensor.Tensor {
	t.Helper()

	if shape == nil {
		shape = []int64{}
	}

	x, err := tensor.New(data, shape)
	require.NoError(t, err)

	return x
}

func outTensor(t *testing.T, outs []tensor.Value, i int) *tensor.Tensor {
	t.Helper()

	require.Greater(t, len(outs), i)

	x, ok := outs[i].(*tensor.Tensor)
	require.True(t, ok, "output %d is %T", i, outs[i])

	return x
}

func outValues[T tensor.Element](t *testing.T, outs []tensor.Value, i int) []T {
	t.Helper()

	v, err := tensor.Values[T](outTensor(t, outs, i))
	require.NoError(t, err)

	return v
}

func inputs(ts ...*tensor.Tensor) []tensor.Value {
	out := make([]tensor.Value, len(ts))
	for i, x := range ts {
		if x != nil {
			out[i] = x
		}
	}

	return out
}

func TestLookupVersions(t *testing.T) {
	tests := []struct {
		name    string
		version int
		since   int
	}{
		{"ArgMax", 11, 11},
		{"ArgMax", 12, 12},
		{"ArgMax", 17, 13},
		{"ReduceSum", 12, 11},
		{"ReduceSum", 13, 13},
		{"ReduceMin", 19, 18},
		{"Identity", 15, 14},
		{"Abs", 0, 13},
		{"Softmax", 12, 11},
	}

	for _, tc := range tests {
		op, err := Lookup(tc.name, tc.version)
		require.NoError(t, err, "%s-%d", tc.name, tc.version)
		assert.Equal(t, tc.since, op.Since, "%s-%d", tc.name, tc.version)
	}

	_, err := Lookup("Abs", 5)
	require.ErrorIs(t, err, ErrUnknownOperator)

	_, err = Lookup("Frobnicate", 0)
	require.ErrorIs(t, err, ErrUnknownOperator)
}

func TestOperatorsListing(t *testing.T) {
	list := Operators()
	require.NotEmpty(t, list)

	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}

	var abs *OperatorInfo

	for i := range list {
		if list[i].Name == "Abs" {
			abs = &list[i]
		}
	}

	require.NotNil(t, abs)
	assert.Equal(t, []int{6, 13}, abs.Versions)
}

func TestEvaluateArgMaxVersions(t *testing.T) {
	e := New()
	x := mustTensor(t, []float32{2, 2, 3, 10}, 2, 2)
	attrs := Attributes{
		"axis":              IntAttr(1),
		"keepdims":          IntAttr(0),
		"select_last_index": IntAttr(1),
	}

	outs, err := e.Evaluate(Descriptor{Name: "ArgMax", Version: 12}, inputs(x), attrs)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, outValues[int64](t, outs, 0))

	outs, err = e.Evaluate(Descriptor{Name: "ArgMin", Version: 13}, inputs(x), attrs)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0}, outValues[int64](t, outs, 0))

	delete(attrs, "select_last_index")

	outs, err = e.Evaluate(Descriptor{Name: "ArgMax", Version: 13}, inputs(x), attrs)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, outValues[int64](t, outs, 0))

	_, err = e.Evaluate(Descriptor{Name: "ArgMax", Version: 11}, inputs(x), Attributes{"select_last_index": IntAttr(1)})
	require.ErrorIs(t, err, ErrAttribute)
}

func TestEvaluateArity(t *testing.T) {
	e := New()
	a := mustTensor(t, []float32{1, 2, 3, 4}, 2, 2)

	_, err := e.Evaluate(Descriptor{Name: "Add"}, inputs(a), nil)
	require.ErrorIs(t, err, ErrArityMismatch)

	_, err = e.Evaluate(Descriptor{Name: "Abs"}, inputs(a, a), nil)
	require.ErrorIs(t, err, ErrArityMismatch)

	_, err = e.Evaluate(Descriptor{Name: "Add"}, []tensor.Value{a, nil}, nil)
	require.ErrorIs(t, err, ErrArityMismatch)

	_, err = e.Evaluate(Descriptor{Name: "Gemm", Version: 9}, inputs(a, a), nil)
	require.ErrorIs(t, err, ErrArityMismatch)

	outs, err := e.Evaluate(Descriptor{Name: "Gemm", Version: 13}, inputs(a, a), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 10, 15, 22}, outValues[float32](t, outs, 0))

	outs, err = e.Evaluate(Descriptor{Name: "Gemm"}, []tensor.Value{a, a, nil}, Attributes{"alpha": FloatAttr(2)})
	require.NoError(t, err)
	assert.Equal(t, []float32{14, 20, 30, 44}, outValues[float32](t, outs, 0))
}

func TestEvaluateAttributeErrors(t *testing.T) {
	e := New()
	x := mustTensor(t, []uint8{1, 2}, 2)
	y := mustTensor(t, []uint8{1, 1}, 2)

	_, err := e.Evaluate(Descriptor{Name: "BitShift"}, inputs(x, y), nil)
	require.ErrorIs(t, err, ErrAttribute)

	_, err = e.Evaluate(Descriptor{Name: "BitShift"}, inputs(x, y), Attributes{"direction": IntAttr(1)})
	require.ErrorIs(t, err, ErrAttribute)

	_, err = e.Evaluate(Descriptor{Name: "BitShift"}, inputs(x, y), Attributes{"direction": StringAttr("UP")})
	require.ErrorIs(t, err, ErrAttribute)

	outs, err := e.Evaluate(Descriptor{Name: "BitShift"}, inputs(x, y), Attributes{"direction": StringAttr("LEFT")})
	require.NoError(t, err)
	assert.Equal(t, []uint8{2, 4}, outValues[uint8](t, outs, 0))

	_, err = e.Evaluate(Descriptor{Name: "Abs"}, inputs(x), Attributes{"alpha": FloatAttr(1)})
	require.ErrorIs(t, err, ErrAttribute)

	_, err = e.Evaluate(Descriptor{Name: "Einsum"}, inputs(x), Attributes{"equation": StringAttr("i->ii")})
	require.ErrorIs(t, err, ErrAttribute)
	require.ErrorIs(t, err, ops.ErrInvalidEquation)
	assert.Equal(t, "AttributeError", Kind(err))
}

func TestEvaluateKernelErrorsPropagate(t *testing.T) {
	e := New()
	f := mustTensor(t, []float32{1}, 1)

	_, err := e.Evaluate(Descriptor{Name: "And"}, inputs(f, f), nil)
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)
	assert.Equal(t, "UnsupportedDtype", Kind(err))

	seq, err := tensor.NewSequence(tensor.Float32, f)
	require.NoError(t, err)

	_, err = e.Evaluate(Descriptor{Name: "Abs"}, []tensor.Value{seq}, nil)
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)
}

func TestEvaluateReduceAxesForms(t *testing.T) {
	e := New()
	x := mustTensor(t, []float32{5, 1, 20, 2, 30, 1, 40, 2, 55, 1, 60, 2}, 3, 2, 2)

	outs, err := e.Evaluate(Descriptor{Name: "ReduceMin", Version: 13}, inputs(x), Attributes{"axes": IntsAttr(1)})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2}, outTensor(t, outs, 0).Shape())
	assert.Equal(t, []float32{5, 1, 30, 1, 55, 1}, outValues[float32](t, outs, 0))

	axes := mustTensor(t, []int64{1}, 1)

	outs, err = e.Evaluate(Descriptor{Name: "ReduceMin", Version: 18}, inputs(x, axes), Attributes{"keepdims": IntAttr(0)})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, outTensor(t, outs, 0).Shape())

	_, err = e.Evaluate(Descriptor{Name: "ReduceMin", Version: 13}, inputs(x, axes), nil)
	require.ErrorIs(t, err, ErrArityMismatch)

	outs, err = e.Evaluate(Descriptor{Name: "ReduceMin", Version: 13}, inputs(x), Attributes{"axes": IntsAttr()})
	require.NoError(t, err)
	assert.Same(t, x, outTensor(t, outs, 0))

	outs, err = e.Evaluate(Descriptor{Name: "ReduceSum"}, inputs(x), Attributes{"noop_with_empty_axes": IntAttr(1)})
	require.NoError(t, err)
	assert.Same(t, x, outTensor(t, outs, 0))

	outs, err = e.Evaluate(Descriptor{Name: "ReduceSum"}, inputs(x), Attributes{"keepdims": IntAttr(0)})
	require.NoError(t, err)
	assert.Equal(t, []float32{219}, outValues[float32](t, outs, 0))

	dup := mustTensor(t, []int64{0, -3}, 2)

	_, err = e.Evaluate(Descriptor{Name: "ReduceMax"}, inputs(x, dup), nil)
	assert.Equal(t, "DuplicateAxis", Kind(err))
}

func TestEvaluateSqueezeVersions(t *testing.T) {
	e := New()
	x := mustTensor(t, make([]float32, 15), 1, 3, 1, 5)

	outs, err := e.Evaluate(Descriptor{Name: "Squeeze", Version: 11}, inputs(x), Attributes{"axes": IntsAttr(-2)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5}, outTensor(t, outs, 0).Shape())

	outs, err = e.Evaluate(Descriptor{Name: "Squeeze", Version: 13}, inputs(x, mustTensor(t, []int64{-2}, 1)), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5}, outTensor(t, outs, 0).Shape())

	_, err = e.Evaluate(Descriptor{Name: "Squeeze", Version: 13}, inputs(x, mustTensor(t, []int64{1}, 1)), nil)
	require.ErrorIs(t, err, ops.ErrInvalidSqueeze)
	assert.Equal(t, "InvalidSqueeze", Kind(err))

	outs, err = e.Evaluate(Descriptor{Name: "Unsqueeze"}, inputs(x, mustTensor(t, []int64{0}, 1)), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 3, 1, 5}, outTensor(t, outs, 0).Shape())
}

func TestEvaluateShapeOperators(t *testing.T) {
	e := New()
	x := mustTensor(t, []float32{1, 2, 3}, 3, 1)

	outs, err := e.Evaluate(Descriptor{Name: "Expand"}, inputs(x, mustTensor(t, []int64{2, 1, 6}, 3)), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 6}, outTensor(t, outs, 0).Shape())

	_, err = e.Evaluate(Descriptor{Name: "Expand"}, inputs(x, mustTensor(t, []int64{2, 2}, 2)), nil)
	assert.Equal(t, "BroadcastError", Kind(err))

	outs, err = e.Evaluate(Descriptor{Name: "Reshape"}, inputs(x, mustTensor(t, []int64{1, -1}, 2)), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, outTensor(t, outs, 0).Shape())

	outs, err = e.Evaluate(Descriptor{Name: "Transpose"}, inputs(x), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, outTensor(t, outs, 0).Shape())

	outs, err = e.Evaluate(Descriptor{Name: "Concat"}, inputs(x, x), Attributes{"axis": IntAttr(1)})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 2, 2, 3, 3}, outValues[float32](t, outs, 0))
}

func TestEvaluateOversizedOutputs(t *testing.T) {
	e := New()

	scalar := mustTensor(t, []float32{1})
	huge := mustTensor(t, []int64{1 << 40, 1 << 20}, 2)

	_, err := e.Evaluate(Descriptor{Name: "Expand"}, inputs(scalar, huge), nil)
	require.ErrorIs(t, err, tensor.ErrInvalidShape)
	assert.Equal(t, "InvalidShape", Kind(err))

	a := mustTensor(t, []float32{}, 1<<20, 0)
	b := mustTensor(t, []float32{}, 0, 1<<20)

	_, err = e.Evaluate(Descriptor{Name: "MatMul"}, inputs(a, b), nil)
	assert.Equal(t, "InvalidShape", Kind(err))

	_, err = e.Evaluate(Descriptor{Name: "Gemm"}, inputs(a, b), nil)
	assert.Equal(t, "InvalidShape", Kind(err))

	empty := mustTensor(t, []float32{}, 1<<40, 0)

	_, err = e.Evaluate(Descriptor{Name: "ReduceSum"}, inputs(empty, mustTensor(t, []int64{1}, 1)), nil)
	assert.Equal(t, "InvalidShape", Kind(err))

	_, err = e.Evaluate(Descriptor{Name: "LayerNormalization"}, inputs(empty, mustTensor(t, []float32{}, 0)), nil)
	assert.Equal(t, "InvalidShape", Kind(err))
}

func TestEvaluateIntegerGemm(t *testing.T) {
	a := mustTensor(t, []int32{1, 2, 3, 4}, 2, 2)
	b := mustTensor(t, []int32{5, 6, 7, 8}, 2, 2)
	c := mustTensor(t, []int32{1, -1}, 2)

	outs, err := New().Evaluate(Descriptor{Name: "Gemm", Version: 13}, inputs(a, b, c), Attributes{"beta": FloatAttr(2)})
	require.NoError(t, err)
	assert.Equal(t, []int32{21, 20, 45, 48}, outValues[int32](t, outs, 0))
}

func TestEvaluateGatherElements(t *testing.T) {
	data := mustTensor(t, []int32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 3, 3)
	indices := mustTensor(t, []int64{-1, -2, 0, -2, 0, 0}, 2, 3)

	outs, err := New().Evaluate(Descriptor{Name: "GatherElements"}, inputs(data, indices), nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 5, 3, 4, 2, 3}, outValues[int32](t, outs, 0))

	bad := mustTensor(t, []int64{3, 0, 0, 0, 0, 0}, 2, 3)

	_, err = New().Evaluate(Descriptor{Name: "GatherElements"}, inputs(data, bad), nil)
	assert.Equal(t, "IndexOutOfRange", Kind(err))
}

func TestEvaluateHardmaxVersions(t *testing.T) {
	e := New()
	x := mustTensor(t, []float32{1, 3, 2, 3}, 2, 2)

	outs, err := e.Evaluate(Descriptor{Name: "Hardmax", Version: 11}, inputs(x), Attributes{"axis": IntAttr(0)})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 0}, outValues[float32](t, outs, 0))

	outs, err = e.Evaluate(Descriptor{Name: "Hardmax"}, inputs(x), Attributes{"axis": IntAttr(0)})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 1, 0}, outValues[float32](t, outs, 0))

	ties := mustTensor(t, []float32{3, 3, 3, 1}, 1, 4)

	outs, err = e.Evaluate(Descriptor{Name: "Hardmax"}, inputs(ties), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, outValues[float32](t, outs, 0))
}

func TestEvaluateActivationDefaults(t *testing.T) {
	e := New()
	x := mustTensor(t, []float32{-1, 0, 1}, 3)

	outs, err := e.Evaluate(Descriptor{Name: "HardSigmoid"}, inputs(x), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.3, 0.5, 0.7}, outValues[float32](t, outs, 0), 1e-6)

	outs, err = e.Evaluate(Descriptor{Name: "ThresholdedRelu"}, inputs(mustTensor(t, []float32{0.5, 1, 2}, 3)), nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 2}, outValues[float32](t, outs, 0))
}

func TestEvaluateLayerNormalizationOutputs(t *testing.T) {
	x := mustTensor(t, []float32{1, 3, 5, 7}, 2, 2)
	scale := mustTensor(t, []float32{1, 1}, 2)

	outs, err := New().Evaluate(Descriptor{Name: "LayerNormalization"}, inputs(x, scale), Attributes{"epsilon": FloatAttr(0)})
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, []float32{-1, 1, -1, 1}, outValues[float32](t, outs, 0))
	assert.Equal(t, []float32{2, 6}, outValues[float32](t, outs, 1))
	assert.Equal(t, []int64{2, 1}, outTensor(t, outs, 2).Shape())
}

func TestEvaluateCast(t *testing.T) {
	x := mustTensor(t, []float32{-1.7, 2.5, 300}, 3)

	outs, err := New().Evaluate(Descriptor{Name: "Cast"}, inputs(x), Attributes{"to": IntAttr(int64(tensor.Int8.ONNX()))})
	require.NoError(t, err)
	assert.Equal(t, []int8{-1, 2, 44}, outValues[int8](t, outs, 0))

	_, err = New().Evaluate(Descriptor{Name: "Cast"}, inputs(x), Attributes{"to": IntAttr(8)})
	assert.Equal(t, "UnsupportedDtype", Kind(err))
}

func TestEvaluateIdentityKinds(t *testing.T) {
	e := New()
	x := mustTensor(t, []int64{1, 2, 3}, 3)

	seq, err := tensor.NewSequence(tensor.Int64, x, x)
	require.NoError(t, err)

	opt, err := tensor.Some(seq)
	require.NoError(t, err)

	for _, v := range []tensor.Value{x, seq, opt, tensor.None()} {
		once, err := e.Evaluate(Descriptor{Name: "Identity"}, []tensor.Value{v}, nil)
		require.NoError(t, err)

		twice, err := e.Evaluate(Descriptor{Name: "Identity"}, once, nil)
		require.NoError(t, err)
		assert.True(t, tensor.ValuesEqual(v, twice[0]))
		assert.Equal(t, v.ValueKind(), twice[0].ValueKind())
	}

	_, err = e.Evaluate(Descriptor{Name: "Identity", Version: 13}, []tensor.Value{seq}, nil)
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)

	_, err = e.Evaluate(Descriptor{Name: "Identity", Version: 15}, []tensor.Value{opt}, nil)
	require.ErrorIs(t, err, tensor.ErrUnsupportedDType)

	_, err = e.Evaluate(Descriptor{Name: "Identity", Version: 15}, []tensor.Value{seq}, nil)
	require.NoError(t, err)
}

func TestEvaluateBernoulliSources(t *testing.T) {
	p := make([]float32, 128)
	for i := range p {
		p[i] = 0.5
	}

	x := mustTensor(t, p, 128)
	e := New()

	seeded := Attributes{"seed": FloatAttr(3), "dtype": IntAttr(int64(tensor.Bool.ONNX()))}

	a, err := e.Evaluate(Descriptor{Name: "Bernoulli"}, inputs(x), seeded)
	require.NoError(t, err)

	b, err := e.Evaluate(Descriptor{Name: "Bernoulli"}, inputs(x), seeded)
	require.NoError(t, err)
	assert.Equal(t, tensor.Bool, outTensor(t, a, 0).DType())
	assert.True(t, tensor.ValuesEqual(a[0], b[0]))

	c, err := e.Evaluate(Descriptor{Name: "Bernoulli"}, inputs(x), nil, WithRand(rand.New(rand.NewPCG(9, 9))))
	require.NoError(t, err)

	d, err := e.Evaluate(Descriptor{Name: "Bernoulli"}, inputs(x), nil, WithRand(rand.New(rand.NewPCG(9, 9))))
	require.NoError(t, err)
	assert.True(t, tensor.ValuesEqual(c[0], d[0]))
	assert.Equal(t, tensor.Float32, outTensor(t, c, 0).DType())

	fixed := New(WithSeed(42))

	f1, err := fixed.Evaluate(Descriptor{Name: "Bernoulli"}, inputs(x), nil)
	require.NoError(t, err)

	f2, err := fixed.Evaluate(Descriptor{Name: "Bernoulli"}, inputs(x), nil)
	require.NoError(t, err)
	assert.True(t, tensor.ValuesEqual(f1[0], f2[0]))
}

func TestEvaluateDefaultOpset(t *testing.T) {
	e := New(WithDefaultOpset(11))

	op, err := e.Resolve(Descriptor{Name: "ArgMax"})
	require.NoError(t, err)
	assert.Equal(t, 11, op.Since)

	op, err = e.Resolve(Descriptor{Name: "ArgMax", Version: 13})
	require.NoError(t, err)
	assert.Equal(t, 13, op.Since)
}

func TestEvaluateConcurrent(t *testing.T) {
	e := New()
	a := mustTensor(t, []float64{1, 2, 3, 4}, 2, 2)

	var wg sync.WaitGroup

	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			outs, err := e.Evaluate(Descriptor{Name: "Einsum"}, inputs(a, a), Attributes{"equation": StringAttr("ij,jk->ik")})
			if err == nil && !tensor.ValuesEqual(outs[0], mustTensorNoT([]float64{7, 10, 15, 22}, 2, 2)) {
				err = assert.AnError
			}

			errs[i] = err
		}()
	}

	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
}

func mustTensorNoT(data []float64, shape ...int64) *tensor.Tensor {
	x, err := tensor.New(data, shape)
	if err != nil {
		panic(err)
	}

	return x
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "ShapeMismatch", Kind(tensor.ErrShapeMismatch))
	assert.Equal(t, "AxisOutOfRange", Kind(tensor.ErrAxisOutOfRange))
	assert.Equal(t, "UnknownOperator", Kind(ErrUnknownOperator))
	assert.Equal(t, "Internal", Kind(assert.AnError))
	assert.Equal(t, "Internal", Kind(ErrInternal))
}
