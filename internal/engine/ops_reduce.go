package engine

import (
	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

type reduceFunc func(*tensor.Tensor, ops.ReduceOptions) (*tensor.Tensor, error)

// reduceOp registers the attribute form of a reduction for attrSince and
// the input form, where axes is the optional second input, for inputSince.
func reduceOp(name string, fn reduceFunc, attrSince, inputSince []int) []*Operator {
	byAttr := Operator{
		Name:      name,
		MinInputs: 1,
		MaxInputs: 1,
		Outputs:   1,
		Attrs: []AttrSpec{
			optional("axes", AttrInts),
			withDefault("keepdims", IntAttr(1)),
		},
		Compute: func(c *Call) ([]tensor.Value, error) {
			x, err := c.Input(0)
			if err != nil {
				return nil, err
			}

			axes, err := c.Attrs.Ints("axes")
			if err != nil {
				return nil, err
			}

			keep, err := c.Attrs.Bool("keepdims")
			if err != nil {
				return nil, err
			}

			return single(fn(x, ops.ReduceOptions{Axes: axes, KeepDims: keep}))
		},
	}

	byInput := Operator{
		Name:      name,
		MinInputs: 1,
		MaxInputs: 2,
		Outputs:   1,
		Attrs: []AttrSpec{
			withDefault("keepdims", IntAttr(1)),
			withDefault("noop_with_empty_axes", IntAttr(0)),
		},
		Compute: func(c *Call) ([]tensor.Value, error) {
			x, err := c.Input(0)
			if err != nil {
				return nil, err
			}

			axes, _, err := intsInput(c, 1)
			if err != nil {
				return nil, err
			}

			// An empty axes tensor behaves like an omitted one.
			if len(axes) == 0 {
				axes = nil
			}

			keep, err := c.Attrs.Bool("keepdims")
			if err != nil {
				return nil, err
			}

			noop, err := c.Attrs.Bool("noop_with_empty_axes")
			if err != nil {
				return nil, err
			}

			return single(fn(x, ops.ReduceOptions{Axes: axes, KeepDims: keep, NoopWithEmptyAxes: noop}))
		},
	}

	return concat(versions(byAttr, attrSince...), versions(byInput, inputSince...))
}

type argFunc func(*tensor.Tensor, ops.ArgOptions) (*tensor.Tensor, error)

func argOp(name string, fn argFunc) []*Operator {
	legacy := Operator{
		Name:      name,
		MinInputs: 1,
		MaxInputs: 1,
		Outputs:   1,
		Attrs: []AttrSpec{
			withDefault("axis", IntAttr(0)),
			withDefault("keepdims", IntAttr(1)),
		},
	}

	legacy.Compute = func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		var opts ops.ArgOptions

		if opts.Axis, err = c.Attrs.Int("axis"); err != nil {
			return nil, err
		}

		if opts.KeepDims, err = c.Attrs.Bool("keepdims"); err != nil {
			return nil, err
		}

		if c.Attrs.Has("select_last_index") {
			if opts.SelectLastIndex, err = c.Attrs.Bool("select_last_index"); err != nil {
				return nil, err
			}
		}

		return single(fn(x, opts))
	}

	current := legacy
	current.Attrs = append(append([]AttrSpec{}, legacy.Attrs...), withDefault("select_last_index", IntAttr(0)))

	return concat(versions(legacy, 1, 11), versions(current, 12, 13))
}

func reduceOperators() []*Operator {
	return concat(
		reduceOp("ReduceMin", ops.ReduceMin, []int{1, 11, 12, 13}, []int{18, 20}),
		reduceOp("ReduceMax", ops.ReduceMax, []int{1, 11, 12, 13}, []int{18, 20}),
		reduceOp("ReduceSum", ops.ReduceSum, []int{1, 11}, []int{13}),
		reduceOp("ReduceMean", ops.ReduceMean, []int{1, 11, 13}, []int{18}),
		reduceOp("ReduceProd", ops.ReduceProd, []int{1, 11, 13}, []int{18}),
		argOp("ArgMax", ops.ArgMax),
		argOp("ArgMin", ops.ArgMin),
	)
}
