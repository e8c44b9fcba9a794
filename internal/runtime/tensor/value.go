package tensor

import (
	"errors"
	"fmt"
)

// Kind distinguishes the structural kinds of operator values.
type Kind uint8

const (
	KindTensor Kind = iota + 1
	KindSequence
	KindOptional
)

func (k Kind) String() string {
	switch k {
	case KindTensor:
		return "tensor"
	case KindSequence:
		return "sequence"
	case KindOptional:
		return "optional"
	}

	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is an operator input or output: a *Tensor, *Sequence or *Optional.
type Value interface {
	ValueKind() Kind
}

// Sequence is an ordered list of tensors sharing one element dtype.
type Sequence struct {
	elem    DType
	tensors []*Tensor
}

// NewSequence builds a sequence. Every tensor must have dtype elem.
func NewSequence(elem DType, tensors ...*Tensor) (*Sequence, error) {
	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: sequence element %d is nil", i)
		}

		if t.dtype != elem {
			return nil, fmt.Errorf("tensor: sequence element %d has dtype %v, want %v: %w", i, t.dtype, elem, ErrUnsupportedDType)
		}
	}

	return &Sequence{elem: elem, tensors: append([]*Tensor(nil), tensors...)}, nil
}

func (s *Sequence) ValueKind() Kind { return KindSequence }

func (s *Sequence) ElemType() DType { return s.elem }

func (s *Sequence) Len() int { return len(s.tensors) }

func (s *Sequence) At(i int) (*Tensor, error) {
	if i < 0 || i >= len(s.tensors) {
		return nil, fmt.Errorf("tensor: sequence index %d out of range for length %d: %w", i, len(s.tensors), ErrIndexOutOfRange)
	}

	return s.tensors[i], nil
}

// Tensors returns a copy of the element list.
func (s *Sequence) Tensors() []*Tensor {
	return append([]*Tensor(nil), s.tensors...)
}

// Optional is either empty or wraps a tensor or a sequence.
type Optional struct {
	elem Value
}

// Some wraps v, which must be a *Tensor or a *Sequence.
func Some(v Value) (*Optional, error) {
	if v == nil {
		return nil, errors.New("tensor: optional value is nil, use None")
	}

	if v.ValueKind() == KindOptional {
		return nil, errors.New("tensor: optional cannot wrap an optional")
	}

	return &Optional{elem: v}, nil
}

// None returns an empty optional.
func None() *Optional { return &Optional{} }

func (o *Optional) ValueKind() Kind { return KindOptional }

func (o *Optional) HasValue() bool { return o.elem != nil }

// Value returns the wrapped value, or nil when the optional is empty.
func (o *Optional) Value() Value { return o.elem }

// ValuesEqual reports structural equality: same kind, same element types,
// same lengths and Equal tensors throughout.
func ValuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if a.ValueKind() != b.ValueKind() {
		return false
	}

	switch x := a.(type) {
	case *Tensor:
		return Equal(x, b.(*Tensor))
	case *Sequence:
		y := b.(*Sequence)
		if x.elem != y.elem || len(x.tensors) != len(y.tensors) {
			return false
		}

		for i := range x.tensors {
			if !Equal(x.tensors[i], y.tensors[i]) {
				return false
			}
		}

		return true
	case *Optional:
		y := b.(*Optional)
		if x.HasValue() != y.HasValue() {
			return false
		}

		return !x.HasValue() || ValuesEqual(x.elem, y.elem)
	}

	return false
}
