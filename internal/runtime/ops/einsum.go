package ops

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// Label ids: letters use their ASCII code, broadcast (ellipsis) dimensions
// use ellipsisBase+j.
const ellipsisBase = 1 << 10

type einsumTerm struct {
	labels   []int
	ellipsis int // index in labels where "..." expands, -1 if absent
}

// EinsumEquation is a parsed einsum equation.
type EinsumEquation struct {
	inputs   []einsumTerm
	output   einsumTerm
	explicit bool
}

// Operands returns the number of input terms.
func (e *EinsumEquation) Operands() int { return len(e.inputs) }

// ParseEinsum parses equations such as "bij,bjk->bik" or "...ii->...i".
// Whitespace is ignored.
func ParseEinsum(equation string) (*EinsumEquation, error) {
	eq := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, equation)

	parts := strings.Split(eq, "->")
	if len(parts) > 2 {
		return nil, fmt.Errorf("ops: einsum %q: more than one '->': %w", equation, ErrInvalidEquation)
	}

	e := &EinsumEquation{explicit: len(parts) == 2}

	for _, s := range strings.Split(parts[0], ",") {
		term, err := parseEinsumTerm(equation, s)
		if err != nil {
			return nil, err
		}

		e.inputs = append(e.inputs, term)
	}

	if !e.explicit {
		return e, nil
	}

	out, err := parseEinsumTerm(equation, parts[1])
	if err != nil {
		return nil, err
	}

	seen := map[int]bool{}

	for _, l := range out.labels {
		if seen[l] {
			return nil, fmt.Errorf("ops: einsum %q: output label %q repeated: %w", equation, rune(l), ErrInvalidEquation)
		}

		seen[l] = true

		if !slices.ContainsFunc(e.inputs, func(t einsumTerm) bool { return slices.Contains(t.labels, l) }) {
			return nil, fmt.Errorf("ops: einsum %q: output label %q not in any input: %w", equation, rune(l), ErrInvalidEquation)
		}
	}

	e.output = out

	return e, nil
}

func parseEinsumTerm(equation, s string) (einsumTerm, error) {
	term := einsumTerm{ellipsis: -1}

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c == '.':
			if !strings.HasPrefix(s[i:], "...") {
				return term, fmt.Errorf("ops: einsum %q: stray '.' in term %q: %w", equation, s, ErrInvalidEquation)
			}

			if term.ellipsis >= 0 {
				return term, fmt.Errorf("ops: einsum %q: term %q has more than one ellipsis: %w", equation, s, ErrInvalidEquation)
			}

			term.ellipsis = len(term.labels)
			i += 2
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			term.labels = append(term.labels, int(c))
		default:
			return term, fmt.Errorf("ops: einsum %q: invalid character %q: %w", equation, c, ErrInvalidEquation)
		}
	}

	return term, nil
}

// expand returns the term's per-axis labels with the ellipsis replaced by
// ell broadcast labels, right-aligned against total broadcast dims.
func (t einsumTerm) expand(ell, total int) []int {
	if t.ellipsis < 0 {
		return append([]int(nil), t.labels...)
	}

	out := make([]int, 0, len(t.labels)+ell)
	out = append(out, t.labels[:t.ellipsis]...)

	for j := total - ell; j < total; j++ {
		out = append(out, ellipsisBase+j)
	}

	return append(out, t.labels[t.ellipsis:]...)
}

type einsumPlan struct {
	outShape []int64
	// base[k][o] is operand k's offset for output element o.
	base [][]int64
	// sum[k][s] is operand k's offset for summed position s.
	sum [][]int64
}

func (e *EinsumEquation) plan(equation string, shapes [][]int64) (*einsumPlan, error) {
	if len(shapes) != len(e.inputs) {
		return nil, fmt.Errorf("ops: einsum %q: %d operands for %d terms: %w", equation, len(shapes), len(e.inputs), tensor.ErrShapeMismatch)
	}

	ells := make([]int, len(shapes))
	maxEll := 0

	for k, t := range e.inputs {
		rank := len(shapes[k])

		ell := rank - len(t.labels)
		if (t.ellipsis < 0 && ell != 0) || ell < 0 {
			return nil, fmt.Errorf("ops: einsum %q: term %d has %d labels for rank %d operand: %w", equation, k, len(t.labels), rank, tensor.ErrShapeMismatch)
		}

		ells[k] = ell
		maxEll = max(maxEll, ell)
	}

	sizes := map[int]int64{}
	axes := make([][]int, len(shapes))

	var order []int

	for k, t := range e.inputs {
		axes[k] = t.expand(ells[k], maxEll)

		for d, l := range axes[k] {
			n := shapes[k][d]

			prev, ok := sizes[l]
			switch {
			case !ok:
				sizes[l] = n
				order = append(order, l)
			case prev == n:
			case l >= ellipsisBase && prev == 1:
				sizes[l] = n
			case l >= ellipsisBase && n == 1:
			case l >= ellipsisBase:
				return nil, fmt.Errorf("ops: einsum %q: broadcast dimensions %d and %d differ: %w", equation, prev, n, tensor.ErrBroadcast)
			default:
				return nil, fmt.Errorf("ops: einsum %q: label %q has sizes %d and %d: %w", equation, rune(l), prev, n, tensor.ErrShapeMismatch)
			}
		}
	}

	outLabels := e.outputLabels(maxEll)

	inOut := map[int]bool{}
	for _, l := range outLabels {
		inOut[l] = true
	}

	var sumLabels []int

	for _, l := range order {
		if !inOut[l] {
			sumLabels = append(sumLabels, l)
		}
	}

	p := &einsumPlan{
		base: make([][]int64, len(shapes)),
		sum:  make([][]int64, len(shapes)),
	}

	outSizes := make([]int64, len(outLabels))
	for i, l := range outLabels {
		outSizes[i] = sizes[l]
	}

	sumSizes := make([]int64, len(sumLabels))
	for i, l := range sumLabels {
		sumSizes[i] = sizes[l]
	}

	p.outShape = outSizes

	outLen, err := outputSize("Einsum", outSizes)
	if err != nil {
		return nil, err
	}

	if outLen == 0 {
		sumSizes = nil
	} else if _, err := tensor.ShapeSize(sumSizes); err != nil {
		return nil, fmt.Errorf("ops: einsum %q: contraction %v: %w", equation, sumSizes, err)
	}

	for k := range shapes {
		strides := tensor.Strides(shapes[k])

		// Repeated labels add their strides, which walks the diagonal.
		byLabel := map[int]int64{}
		for d, l := range axes[k] {
			if shapes[k][d] == 1 && sizes[l] != 1 {
				continue
			}

			byLabel[l] += strides[d]
		}

		p.base[k] = subspaceOffsets(outSizes, labelStrides(outLabels, byLabel))
		p.sum[k] = subspaceOffsets(sumSizes, labelStrides(sumLabels, byLabel))
	}

	return p, nil
}

func labelStrides(labels []int, byLabel map[int]int64) []int64 {
	out := make([]int64, len(labels))
	for i, l := range labels {
		out[i] = byLabel[l]
	}

	return out
}

// outputLabels returns explicit output labels with the ellipsis expanded,
// or the implicit output: broadcast dims, then labels that occur exactly
// once across all inputs in ASCII order. Broadcast dims omitted from an
// explicit output are summed.
func (e *EinsumEquation) outputLabels(maxEll int) []int {
	if e.explicit {
		return e.output.expand(maxEll, maxEll)
	}

	out := make([]int, 0, maxEll)
	for j := range maxEll {
		out = append(out, ellipsisBase+j)
	}

	count := map[int]int{}
	for _, t := range e.inputs {
		for _, l := range t.labels {
			count[l]++
		}
	}

	var once []int

	for l, c := range count {
		if c == 1 {
			once = append(once, l)
		}
	}

	slices.Sort(once)

	return append(out, once...)
}

// Einsum evaluates equation over inputs of one dtype. Floating point
// products accumulate in float64 in row-major order of the summed labels,
// taken in order of first appearance.
func Einsum(equation string, inputs ...*tensor.Tensor) (*tensor.Tensor, error) {
	const op = "Einsum"

	e, err := ParseEinsum(equation)
	if err != nil {
		return nil, err
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("ops: %s: no operands: %w", op, tensor.ErrShapeMismatch)
	}

	shapes := make([][]int64, len(inputs))

	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("ops: %s: operand %d is nil", op, i)
		}

		if err := sameDType(op, inputs[0], in); err != nil {
			return nil, err
		}

		shapes[i] = in.Shape()
	}

	p, err := e.plan(equation, shapes)
	if err != nil {
		return nil, err
	}

	dt := inputs[0].DType()

	switch dt {
	case tensor.Float16, tensor.Float32, tensor.Float64:
		data := make([][]float64, len(inputs))
		for i, in := range inputs {
			if data[i], err = toFloat64(op, in); err != nil {
				return nil, err
			}
		}

		return fromFloat64(op, dt, p.outShape, einsumEval(data, p))
	case tensor.Int8:
		return wrap(p.outShape, einsumEval(operandValues[int8](inputs), p))
	case tensor.Int16:
		return wrap(p.outShape, einsumEval(operandValues[int16](inputs), p))
	case tensor.Int32:
		return wrap(p.outShape, einsumEval(operandValues[int32](inputs), p))
	case tensor.Int64:
		return wrap(p.outShape, einsumEval(operandValues[int64](inputs), p))
	case tensor.Uint8:
		return wrap(p.outShape, einsumEval(operandValues[uint8](inputs), p))
	case tensor.Uint16:
		return wrap(p.outShape, einsumEval(operandValues[uint16](inputs), p))
	case tensor.Uint32:
		return wrap(p.outShape, einsumEval(operandValues[uint32](inputs), p))
	case tensor.Uint64:
		return wrap(p.outShape, einsumEval(operandValues[uint64](inputs), p))
	}

	return nil, unsupported(op, dt)
}

func operandValues[T numericT](inputs []*tensor.Tensor) [][]T {
	out := make([][]T, len(inputs))
	for i, in := range inputs {
		out[i] = values[T](in)
	}

	return out
}

func einsumEval[T numericT](data [][]T, p *einsumPlan) []T {
	outLen := int(shapeProduct(p.outShape))
	sumLen := len(p.sum[0])
	out := make([]T, outLen)

	tensor.ParallelFor(outLen, sumLen*len(data)+1, func(lo, hi int) {
		for o := lo; o < hi; o++ {
			var acc T

			for s := range sumLen {
				prod := T(1)
				for k, d := range data {
					prod *= d[p.base[k][o]+p.sum[k][s]]
				}

				acc += prod
			}

			out[o] = acc
		}
	})

	return out
}
