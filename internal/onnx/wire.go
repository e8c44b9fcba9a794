package onnx

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed reports protobuf bytes that do not decode as the expected
// ONNX message.
var ErrMalformed = errors.New("onnx: malformed protobuf")

// field is one decoded protobuf field. Scalars land in u, length-delimited
// payloads in b.
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) int64() int64 { return int64(f.u) }

func (f field) str() string { return string(f.b) }

// walk calls fn for every top-level field of a message in wire order.
func walk(msg []byte, fn func(f field) error) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return fmt.Errorf("%w: tag: %w", ErrMalformed, protowire.ParseError(n))
		}

		msg = msg[n:]
		f := field{num: num, typ: typ}

		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(msg)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(msg)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(msg)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(msg)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}

		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}

		msg = msg[n:]

		if err := fn(f); err != nil {
			return err
		}
	}

	return nil
}

// varints appends a repeated varint field, packed or not.
func varints(dst []uint64, f field) ([]uint64, error) {
	if f.typ == protowire.VarintType {
		return append(dst, f.u), nil
	}

	if f.typ != protowire.BytesType {
		return dst, wireTypeError(f)
	}

	for b := f.b; len(b) > 0; {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return dst, fmt.Errorf("%w: packed field %d: %w", ErrMalformed, f.num, protowire.ParseError(n))
		}

		dst = append(dst, v)
		b = b[n:]
	}

	return dst, nil
}

// fixed32s appends a repeated fixed32 field (float), packed or not.
func fixed32s(dst []uint32, f field) ([]uint32, error) {
	if f.typ == protowire.Fixed32Type {
		return append(dst, uint32(f.u)), nil
	}

	if f.typ != protowire.BytesType || len(f.b)%4 != 0 {
		return dst, wireTypeError(f)
	}

	for b := f.b; len(b) > 0; b = b[4:] {
		v, _ := protowire.ConsumeFixed32(b)
		dst = append(dst, v)
	}

	return dst, nil
}

// fixed64s appends a repeated fixed64 field (double), packed or not.
func fixed64s(dst []uint64, f field) ([]uint64, error) {
	if f.typ == protowire.Fixed64Type {
		return append(dst, f.u), nil
	}

	if f.typ != protowire.BytesType || len(f.b)%8 != 0 {
		return dst, wireTypeError(f)
	}

	for b := f.b; len(b) > 0; b = b[8:] {
		v, _ := protowire.ConsumeFixed64(b)
		dst = append(dst, v)
	}

	return dst, nil
}

func wireTypeError(f field) error {
	return fmt.Errorf("%w: field %d has unexpected wire type %d", ErrMalformed, f.num, f.typ)
}

func expect(f field, typ protowire.Type) error {
	if f.typ != typ {
		return wireTypeError(f)
	}

	return nil
}
