package ops

import (
	"fmt"
	"math"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// ConvParams are the Conv attributes. Nil slices take ONNX defaults.
type ConvParams struct {
	AutoPad     string
	Dilations   []int64
	Group       int64
	KernelShape []int64
	Pads        []int64
	Strides     []int64
}

type convGeom struct {
	batch, inCh, outCh int64
	group              int64
	inPerGroup         int64
	outPerGroup        int64
	inSpatial          []int64
	kernel             []int64
	outSpatial         []int64
	strides            []int64
	dilations          []int64
	padBegin           []int64
}

// Conv is an N-D convolution over X (N, C, D1..Dn) with weights
// W (M, C/group, k1..kn) and optional bias B (M). Each group is lowered to
// an im2col patch matrix and a dot product per output channel.
func Conv(x, w, b *tensor.Tensor, p ConvParams) (*tensor.Tensor, error) {
	g, err := prepareConv(x, w, b, p)
	if err != nil {
		return nil, err
	}

	xData, err := toFloat64("Conv", x)
	if err != nil {
		return nil, err
	}

	wData, err := toFloat64("Conv", w)
	if err != nil {
		return nil, err
	}

	var bData []float64
	if b != nil {
		if bData, err = toFloat64("Conv", b); err != nil {
			return nil, err
		}
	}

	outShape := append([]int64{g.batch, g.outCh}, g.outSpatial...)

	return fromFloat64("Conv", x.DType(), outShape, convIm2col(xData, wData, bData, g))
}

func prepareConv(x, w, b *tensor.Tensor, p ConvParams) (*convGeom, error) {
	const op = "Conv"

	if err := requireInput(op, "X", x); err != nil {
		return nil, err
	}

	if err := requireInput(op, "W", w); err != nil {
		return nil, err
	}

	if err := sameDType(op, x, w); err != nil {
		return nil, err
	}

	xShape, wShape := x.Shape(), w.Shape()
	if len(xShape) < 3 || len(wShape) != len(xShape) {
		return nil, fmt.Errorf("ops: %s: X %v and W %v must have equal rank >= 3: %w", op, xShape, wShape, tensor.ErrShapeMismatch)
	}

	r := len(xShape) - 2

	group := p.Group
	if group == 0 {
		group = 1
	}

	g := &convGeom{
		batch:     xShape[0],
		inCh:      xShape[1],
		outCh:     wShape[0],
		group:     group,
		inSpatial: xShape[2:],
		kernel:    wShape[2:],
	}

	if group < 0 || g.inCh%group != 0 || g.outCh%group != 0 {
		return nil, fmt.Errorf("ops: %s: channels (%d, %d) not divisible by group %d: %w", op, g.inCh, g.outCh, group, tensor.ErrShapeMismatch)
	}

	g.inPerGroup = g.inCh / group
	g.outPerGroup = g.outCh / group

	if wShape[1] != g.inPerGroup {
		return nil, fmt.Errorf("ops: %s: W in_channels %d, want %d: %w", op, wShape[1], g.inPerGroup, tensor.ErrShapeMismatch)
	}

	if p.KernelShape != nil && !sameInts(p.KernelShape, g.kernel) {
		return nil, fmt.Errorf("ops: %s: kernel_shape %v does not match W %v: %w", op, p.KernelShape, wShape, tensor.ErrShapeMismatch)
	}

	if b != nil {
		if err := sameDType(op, x, b); err != nil {
			return nil, err
		}

		if bs := b.Shape(); len(bs) != 1 || bs[0] != g.outCh {
			return nil, fmt.Errorf("ops: %s: B shape %v does not match out_channels %d: %w", op, bs, g.outCh, tensor.ErrShapeMismatch)
		}
	}

	var err error
	if g.strides, err = spatialParam("strides", p.Strides, r, 1); err != nil {
		return nil, err
	}

	if g.dilations, err = spatialParam("dilations", p.Dilations, r, 1); err != nil {
		return nil, err
	}

	pads, err := spatialParam("pads", p.Pads, 2*r, 0)
	if err != nil {
		return nil, err
	}

	g.padBegin = make([]int64, r)
	g.outSpatial = make([]int64, r)

	for d := range r {
		in, k := g.inSpatial[d], g.kernel[d]
		if in > math.MaxInt32 || k > math.MaxInt32 {
			return nil, fmt.Errorf("ops: %s: spatial dims %v or kernel %v too large: %w", op, g.inSpatial, g.kernel, tensor.ErrInvalidShape)
		}

		s, dl := g.strides[d], g.dilations[d]
		span := (k-1)*dl + 1

		begin, end := pads[d], pads[d+r]

		switch p.AutoPad {
		case "", "NOTSET":
		case "VALID":
			begin, end = 0, 0
		case "SAME_UPPER", "SAME_LOWER":
			out := (in + s - 1) / s
			total := max(0, (out-1)*s+span-in)
			begin = total / 2

			if p.AutoPad == "SAME_LOWER" {
				begin = total - total/2
			}

			end = total - begin
		default:
			return nil, fmt.Errorf("ops: %s: unknown auto_pad %q", op, p.AutoPad)
		}

		out := (in+begin+end-span)/s + 1
		if in+begin+end < span || out <= 0 {
			return nil, fmt.Errorf("ops: %s: kernel %v does not fit padded input %v: %w", op, g.kernel, g.inSpatial, tensor.ErrInvalidShape)
		}

		g.padBegin[d] = begin
		g.outSpatial[d] = out
	}

	if _, err := outputSize(op, append([]int64{g.batch, g.outCh}, g.outSpatial...)); err != nil {
		return nil, err
	}

	// im2col scratch: [outPositions, inPerGroup*kernelSize].
	patch := append(append([]int64{g.inPerGroup}, g.outSpatial...), g.kernel...)
	if _, err := tensor.ShapeSize(patch); err != nil {
		return nil, fmt.Errorf("ops: %s: patch matrix: %w", op, err)
	}

	return g, nil
}

func spatialParam(name string, v []int64, n int, def int64) ([]int64, error) {
	if v == nil {
		out := make([]int64, n)
		for i := range out {
			out[i] = def
		}

		return out, nil
	}

	if len(v) != n {
		return nil, fmt.Errorf("ops: Conv: %s %v must have %d values: %w", name, v, n, tensor.ErrShapeMismatch)
	}

	for _, x := range v {
		if x < 0 || x > math.MaxInt32 || (def == 1 && x == 0) {
			return nil, fmt.Errorf("ops: Conv: invalid %s %v: %w", name, v, tensor.ErrInvalidShape)
		}
	}

	return v, nil
}

func sameInts(a, b []int64) bool {
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

// convIm2col lowers each (batch, group) to a patch matrix
// [outPositions, inPerGroup*kernelSize] whose rows line up with the
// contiguous weight rows of that group.
func convIm2col(xData, wData, bData []float64, g *convGeom) []float64 {
	r := len(g.inSpatial)

	inSize := shapeProduct(g.inSpatial)
	kSize := shapeProduct(g.kernel)
	outPos := shapeProduct(g.outSpatial)
	patchLen := g.inPerGroup * kSize

	inStrides := tensor.Strides(g.inSpatial)
	kStrides := tensor.Strides(g.kernel)
	oStrides := tensor.Strides(g.outSpatial)

	kCoords := make([][]int64, kSize)
	for k := range kSize {
		kCoords[k] = make([]int64, r)
		tensor.Unravel(k, g.kernel, kStrides, kCoords[k])
	}

	out := make([]float64, g.batch*g.outCh*outPos)

	imcol := getScratch(int(outPos * patchLen))
	defer putScratch(imcol)

	oCoord := make([]int64, r)

	for n := range g.batch {
		for grp := range g.group {
			clear(imcol)

			for o := range outPos {
				tensor.Unravel(o, g.outSpatial, oStrides, oCoord)
				row := imcol[o*patchLen : (o+1)*patchLen]

				for k := range kSize {
					off, ok := int64(0), true

					for d := range r {
						pos := oCoord[d]*g.strides[d] - g.padBegin[d] + kCoords[k][d]*g.dilations[d]
						if pos < 0 || pos >= g.inSpatial[d] {
							ok = false
							break
						}

						off += pos * inStrides[d]
					}

					if !ok {
						continue
					}

					for ic := range g.inPerGroup {
						c := grp*g.inPerGroup + ic
						row[ic*kSize+k] = xData[(n*g.inCh+c)*inSize+off]
					}
				}
			}

			// Output channels of one group write disjoint rows of out.
			tensor.ParallelFor(int(g.outPerGroup), int(outPos*patchLen), func(lo, hi int) {
				for j := int64(lo); j < int64(hi); j++ {
					oc := grp*g.outPerGroup + j
					kernelRow := wData[oc*patchLen : (oc+1)*patchLen]

					bias := 0.0
					if bData != nil {
						bias = bData[oc]
					}

					dst := out[(n*g.outCh+oc)*outPos : (n*g.outCh+oc+1)*outPos]
					for o := range outPos {
						dst[o] = dot(kernelRow, imcol[o*patchLen:(o+1)*patchLen]) + bias
					}
				}
			})
		}
	}

	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}

	return s
}
