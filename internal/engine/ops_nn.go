package engine

import (
	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// lineOp registers Hardmax or Softmax. Before opset 13 the input is coerced
// to 2-D at axis, which defaults to 1; from 13 the kernel works along one
// axis, defaulting to -1.
func lineOp(name string, fn func(*tensor.Tensor, int64, bool) (*tensor.Tensor, error)) []*Operator {
	compute := func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		axis, err := c.Attrs.Int("axis")
		if err != nil {
			return nil, err
		}

		return single(fn(x, axis, c.Op.Since < 13))
	}

	return concat(
		versions(newOp(name, 1, 1, compute, withDefault("axis", IntAttr(1))), 1, 11),
		versions(newOp(name, 1, 1, compute, withDefault("axis", IntAttr(-1))), 13),
	)
}

func computeLayerNorm(c *Call) ([]tensor.Value, error) {
	x, err := c.Input(0)
	if err != nil {
		return nil, err
	}

	scale, err := c.Input(1)
	if err != nil {
		return nil, err
	}

	bias, err := c.Input(2)
	if err != nil {
		return nil, err
	}

	axis, err := c.Attrs.Int("axis")
	if err != nil {
		return nil, err
	}

	eps, err := c.Attrs.Float("epsilon")
	if err != nil {
		return nil, err
	}

	res, err := ops.LayerNormalization(x, scale, bias, axis, eps)
	if err != nil {
		return nil, err
	}

	return []tensor.Value{res.Y, res.Mean, res.InvStdDev}, nil
}

func computeConv(c *Call) ([]tensor.Value, error) {
	x, err := c.Input(0)
	if err != nil {
		return nil, err
	}

	w, err := c.Input(1)
	if err != nil {
		return nil, err
	}

	b, err := c.Input(2)
	if err != nil {
		return nil, err
	}

	var p ops.ConvParams

	if p.AutoPad, err = c.Attrs.Str("auto_pad"); err != nil {
		return nil, err
	}

	if p.Group, err = c.Attrs.Int("group"); err != nil {
		return nil, err
	}

	for name, dst := range map[string]*[]int64{
		"dilations":    &p.Dilations,
		"kernel_shape": &p.KernelShape,
		"pads":         &p.Pads,
		"strides":      &p.Strides,
	} {
		if *dst, err = c.Attrs.Ints(name); err != nil {
			return nil, err
		}
	}

	switch p.AutoPad {
	case "NOTSET", "VALID", "SAME_UPPER", "SAME_LOWER":
	default:
		return nil, attrError(c, "auto_pad %q", p.AutoPad)
	}

	return single(ops.Conv(x, w, b, p))
}

func nnOperators() []*Operator {
	hardSigmoid := func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		alpha, err := c.Attrs.Float("alpha")
		if err != nil {
			return nil, err
		}

		beta, err := c.Attrs.Float("beta")
		if err != nil {
			return nil, err
		}

		return single(ops.HardSigmoid(x, alpha, beta))
	}

	thresholdedRelu := func(c *Call) ([]tensor.Value, error) {
		x, err := c.Input(0)
		if err != nil {
			return nil, err
		}

		alpha, err := c.Attrs.Float("alpha")
		if err != nil {
			return nil, err
		}

		return single(ops.ThresholdedRelu(x, alpha))
	}

	layerNorm := Operator{
		Name:      "LayerNormalization",
		MinInputs: 2,
		MaxInputs: 3,
		Outputs:   3,
		Attrs: []AttrSpec{
			withDefault("axis", IntAttr(-1)),
			withDefault("epsilon", FloatAttr(1e-5)),
			withDefault("stash_type", IntAttr(1)),
		},
		Compute: computeLayerNorm,
	}

	convAttrs := []AttrSpec{
		withDefault("auto_pad", StringAttr("NOTSET")),
		optional("dilations", AttrInts),
		withDefault("group", IntAttr(1)),
		optional("kernel_shape", AttrInts),
		optional("pads", AttrInts),
		optional("strides", AttrInts),
	}

	return concat(
		lineOp("Hardmax", ops.Hardmax),
		lineOp("Softmax", ops.Softmax),
		versions(newOp("HardSigmoid", 1, 1, hardSigmoid,
			withDefault("alpha", FloatAttr(0.2)),
			withDefault("beta", FloatAttr(0.5)),
		), 6),
		versions(newOp("ThresholdedRelu", 1, 1, thresholdedRelu, withDefault("alpha", FloatAttr(1))), 10),
		versions(layerNorm, 17),
		unaryOp("GlobalAveragePool", ops.GlobalAveragePool, 1),
		unaryOp("GlobalMaxPool", ops.GlobalMaxPool, 1),
		versions(newOp("Conv", 2, 3, computeConv, convAttrs...), 1, 11),
	)
}
