package ops

import (
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
)

var arithNames = [...]string{opAdd: "Add", opSub: "Sub", opMul: "Mul", opDiv: "Div"}

func binaryPlan(op string, a, b *tensor.Tensor) (*tensor.Broadcast, error) {
	if err := requireInput(op, "A", a); err != nil {
		return nil, err
	}

	if err := requireInput(op, "B", b); err != nil {
		return nil, err
	}

	if err := sameDType(op, a, b); err != nil {
		return nil, err
	}

	return tensor.NewBroadcast(a.Shape(), b.Shape())
}

func Add(a, b *tensor.Tensor) (*tensor.Tensor, error) { return arithmetic(opAdd, a, b) }

func Sub(a, b *tensor.Tensor) (*tensor.Tensor, error) { return arithmetic(opSub, a, b) }

func Mul(a, b *tensor.Tensor) (*tensor.Tensor, error) { return arithmetic(opMul, a, b) }

// Div divides element-wise. Integer division truncates toward zero and a
// zero divisor yields 0.
func Div(a, b *tensor.Tensor) (*tensor.Tensor, error) { return arithmetic(opDiv, a, b) }

func arithmetic(op arithOp, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	name := arithNames[op]

	plan, err := binaryPlan(name, a, b)
	if err != nil {
		return nil, err
	}

	shape := plan.Shape()

	switch a.DType() {
	case tensor.Float16:
		x, y := values[float16.Float16](a), values[float16.Float16](b)
		f := floatArith[float32](op)

		return wrap(shape, binaryMap(x, y, plan, func(p, q float16.Float16) float16.Float16 {
			return float16.Fromfloat32(f(p.Float32(), q.Float32()))
		}))
	case tensor.Float32:
		return wrap(shape, binaryMap(values[float32](a), values[float32](b), plan, floatArith[float32](op)))
	case tensor.Float64:
		return wrap(shape, binaryMap(values[float64](a), values[float64](b), plan, floatArith[float64](op)))
	case tensor.Int8:
		return wrap(shape, binaryMap(values[int8](a), values[int8](b), plan, intArith[int8](op)))
	case tensor.Int16:
		return wrap(shape, binaryMap(values[int16](a), values[int16](b), plan, intArith[int16](op)))
	case tensor.Int32:
		return wrap(shape, binaryMap(values[int32](a), values[int32](b), plan, intArith[int32](op)))
	case tensor.Int64:
		return wrap(shape, binaryMap(values[int64](a), values[int64](b), plan, intArith[int64](op)))
	case tensor.Uint8:
		return wrap(shape, binaryMap(values[uint8](a), values[uint8](b), plan, intArith[uint8](op)))
	case tensor.Uint16:
		return wrap(shape, binaryMap(values[uint16](a), values[uint16](b), plan, intArith[uint16](op)))
	case tensor.Uint32:
		return wrap(shape, binaryMap(values[uint32](a), values[uint32](b), plan, intArith[uint32](op)))
	case tensor.Uint64:
		return wrap(shape, binaryMap(values[uint64](a), values[uint64](b), plan, intArith[uint64](op)))
	}

	return nil, unsupported(name, a.DType())
}

func floatArith[T constraints.Float](op arithOp) func(x, y T) T {
	switch op {
	case opSub:
		return func(x, y T) T { return x - y }
	case opMul:
		return func(x, y T) T { return x * y }
	case opDiv:
		return func(x, y T) T { return x / y }
	}

	return func(x, y T) T { return x + y }
}

func intArith[T constraints.Integer](op arithOp) func(x, y T) T {
	switch op {
	case opSub:
		return func(x, y T) T { return x - y }
	case opMul:
		return func(x, y T) T { return x * y }
	case opDiv:
		return func(x, y T) T {
			if y == 0 {
				return 0
			}

			return x / y
		}
	}

	return func(x, y T) T { return x + y }
}

type logicOp int

const (
	opAnd logicOp = iota
	opOr
	opXor
)

var logicNames = [...]string{opAnd: "And", opOr: "Or", opXor: "Xor"}

// And is logical conjunction over bools, bitwise over unsigned integers.
func And(a, b *tensor.Tensor) (*tensor.Tensor, error) { return logical(opAnd, a, b) }

func Or(a, b *tensor.Tensor) (*tensor.Tensor, error) { return logical(opOr, a, b) }

func Xor(a, b *tensor.Tensor) (*tensor.Tensor, error) { return logical(opXor, a, b) }

func logical(op logicOp, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	name := logicNames[op]

	plan, err := binaryPlan(name, a, b)
	if err != nil {
		return nil, err
	}

	shape := plan.Shape()

	switch a.DType() {
	case tensor.Bool:
		var fn func(x, y bool) bool

		switch op {
		case opAnd:
			fn = func(x, y bool) bool { return x && y }
		case opOr:
			fn = func(x, y bool) bool { return x || y }
		default:
			fn = func(x, y bool) bool { return x != y }
		}

		return wrap(shape, binaryMap(values[bool](a), values[bool](b), plan, fn))
	case tensor.Uint8:
		return wrap(shape, binaryMap(values[uint8](a), values[uint8](b), plan, bitwise[uint8](op)))
	case tensor.Uint16:
		return wrap(shape, binaryMap(values[uint16](a), values[uint16](b), plan, bitwise[uint16](op)))
	case tensor.Uint32:
		return wrap(shape, binaryMap(values[uint32](a), values[uint32](b), plan, bitwise[uint32](op)))
	case tensor.Uint64:
		return wrap(shape, binaryMap(values[uint64](a), values[uint64](b), plan, bitwise[uint64](op)))
	}

	return nil, unsupported(name, a.DType())
}

func bitwise[T constraints.Unsigned](op logicOp) func(x, y T) T {
	switch op {
	case opAnd:
		return func(x, y T) T { return x & y }
	case opOr:
		return func(x, y T) T { return x | y }
	}

	return func(x, y T) T { return x ^ y }
}

// BitShift shifts unsigned integers left or right. Shift counts at or beyond
// the type width produce 0.
func BitShift(x, y *tensor.Tensor, left bool) (*tensor.Tensor, error) {
	plan, err := binaryPlan("BitShift", x, y)
	if err != nil {
		return nil, err
	}

	shape := plan.Shape()

	switch x.DType() {
	case tensor.Uint8:
		return wrap(shape, binaryMap(values[uint8](x), values[uint8](y), plan, shifter[uint8](left)))
	case tensor.Uint16:
		return wrap(shape, binaryMap(values[uint16](x), values[uint16](y), plan, shifter[uint16](left)))
	case tensor.Uint32:
		return wrap(shape, binaryMap(values[uint32](x), values[uint32](y), plan, shifter[uint32](left)))
	case tensor.Uint64:
		return wrap(shape, binaryMap(values[uint64](x), values[uint64](y), plan, shifter[uint64](left)))
	}

	return nil, unsupported("BitShift", x.DType())
}

func shifter[T constraints.Unsigned](left bool) func(v, s T) T {
	if left {
		return func(v, s T) T { return v << s }
	}

	return func(v, s T) T { return v >> s }
}
