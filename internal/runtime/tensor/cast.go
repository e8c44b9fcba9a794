package tensor

import (
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// HalfFromFloat64 rounds x to the nearest float16, ties to even, in a single
// rounding. The float32 step rounds to odd, so no tie is invented or lost
// before the final rounding.
func HalfFromFloat64(x float64) float16.Float16 {
	f := float32(x)
	if math.IsNaN(x) || math.IsInf(float64(f), 0) || float64(f) == x {
		return float16.Fromfloat32(f)
	}

	if math.Abs(float64(f)) > math.Abs(x) {
		f = math.Nextafter32(f, 0)
	}

	return float16.Fromfloat32(math.Float32frombits(math.Float32bits(f) | 1))
}

// scalar is an element in transit between dtypes. Floats travel as f, integers
// as their two's complement bits in i.
type scalar struct {
	f       float64
	i       uint64
	isFloat bool
	signed  bool
}

const twoTo64 = 18446744073709551616.0

// Cast converts t to dtype. Floats convert to integers by truncating toward
// zero and wrapping to the target width; NaN and infinities become 0.
// Integers wrap. Float narrowing rounds to nearest even. Any non-zero value
// becomes true.
func (t *Tensor) Cast(dtype DType) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: cast of nil tensor")
	}

	if dtype == t.dtype {
		return t, nil
	}

	n := t.Len()

	out, err := makeSlice(dtype, n)
	if err != nil {
		return nil, err
	}

	for i := range n {
		s := loadScalar(t.data, i)
		if err := storeScalar(out, i, s); err != nil {
			return nil, err
		}
	}

	return newOwned(dtype, out, append([]int64{}, t.shape...)), nil
}

func loadScalar(data any, i int) scalar {
	switch d := data.(type) {
	case []float16.Float16:
		return scalar{f: float64(d[i].Float32()), isFloat: true}
	case []float32:
		return scalar{f: float64(d[i]), isFloat: true}
	case []float64:
		return scalar{f: d[i], isFloat: true}
	case []int8:
		return scalar{i: uint64(int64(d[i])), signed: true}
	case []int16:
		return scalar{i: uint64(int64(d[i])), signed: true}
	case []int32:
		return scalar{i: uint64(int64(d[i])), signed: true}
	case []int64:
		return scalar{i: uint64(d[i]), signed: true}
	case []uint8:
		return scalar{i: uint64(d[i])}
	case []uint16:
		return scalar{i: uint64(d[i])}
	case []uint32:
		return scalar{i: uint64(d[i])}
	case []uint64:
		return scalar{i: d[i]}
	case []bool:
		if d[i] {
			return scalar{i: 1}
		}
	}

	return scalar{}
}

func (s scalar) float() float64 {
	switch {
	case s.isFloat:
		return s.f
	case s.signed:
		return float64(int64(s.i))
	default:
		return float64(s.i)
	}
}

// bits returns the integer representation modulo 2^64.
func (s scalar) bits() uint64 {
	if !s.isFloat {
		return s.i
	}

	f := math.Trunc(s.f)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	if f >= math.MinInt64 && f < math.MaxInt64 {
		return uint64(int64(f))
	}

	m := math.Mod(f, twoTo64)
	if m < 0 {
		m += twoTo64
	}

	if m >= twoTo64 {
		return 0
	}

	return uint64(m)
}

func (s scalar) truth() bool {
	if s.isFloat {
		return s.f != 0
	}

	return s.i != 0
}

func storeScalar(out any, i int, s scalar) error {
	switch d := out.(type) {
	case []float16.Float16:
		d[i] = HalfFromFloat64(s.float())
	case []float32:
		d[i] = float32(s.float())
	case []float64:
		d[i] = s.float()
	case []int8:
		d[i] = int8(s.bits())
	case []int16:
		d[i] = int16(s.bits())
	case []int32:
		d[i] = int32(s.bits())
	case []int64:
		d[i] = int64(s.bits())
	case []uint8:
		d[i] = uint8(s.bits())
	case []uint16:
		d[i] = uint16(s.bits())
	case []uint32:
		d[i] = uint32(s.bits())
	case []uint64:
		d[i] = s.bits()
	case []bool:
		d[i] = s.truth()
	default:
		return fmt.Errorf("tensor: cast to %T: %w", out, ErrUnsupportedDType)
	}

	return nil
}
