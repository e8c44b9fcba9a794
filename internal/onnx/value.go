package onnx

import (
	"fmt"
	"os"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// SequenceProto and OptionalProto field numbers.
const (
	seqTensorValues   = 3
	seqSparseValues   = 4
	seqSequenceValues = 5
	seqMapValues      = 6
	seqOptionalValues = 7

	optTensorValue   = 3
	optSparseValue   = 4
	optSequenceValue = 5
	optMapValue      = 6
	optOptionalValue = 7
)

// DecodeValue decodes a serialized TensorProto, SequenceProto or
// OptionalProto according to t.
func DecodeValue(b []byte, t TypeInfo) (tensor.Value, error) {
	switch t.Kind {
	case tensor.KindTensor, 0:
		return DecodeTensor(b)
	case tensor.KindSequence:
		return decodeSequence(b, t.Elem)
	case tensor.KindOptional:
		return decodeOptional(b, t.Elem)
	}

	return nil, fmt.Errorf("onnx: value kind %v: %w", t.Kind, ErrUnsupported)
}

func decodeSequence(b []byte, elem *TypeInfo) (*tensor.Sequence, error) {
	var ts []*tensor.Tensor

	err := walk(b, func(f field) error {
		switch f.num {
		case seqTensorValues:
			t, err := DecodeTensor(f.b)
			if err != nil {
				return err
			}

			ts = append(ts, t)
		case seqSparseValues, seqSequenceValues, seqMapValues, seqOptionalValues:
			return fmt.Errorf("onnx: sequence field %d: %w", f.num, ErrUnsupported)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	dt := tensor.Undefined
	switch {
	case elem != nil && elem.Kind == tensor.KindTensor:
		dt = elem.DType
	case len(ts) > 0:
		dt = ts[0].DType()
	}

	return tensor.NewSequence(dt, ts...)
}

func decodeOptional(b []byte, elem *TypeInfo) (*tensor.Optional, error) {
	var v tensor.Value

	err := walk(b, func(f field) error {
		var err error

		switch f.num {
		case optTensorValue:
			v, err = DecodeTensor(f.b)
		case optSequenceValue:
			var inner *TypeInfo
			if elem != nil {
				inner = elem.Elem
			}

			v, err = decodeSequence(f.b, inner)
		case optSparseValue, optMapValue, optOptionalValue:
			err = fmt.Errorf("onnx: optional field %d: %w", f.num, ErrUnsupported)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	if v == nil {
		return tensor.None(), nil
	}

	return tensor.Some(v)
}

// ReadTensorFile reads a serialized TensorProto such as input_0.pb.
func ReadTensorFile(path string) (*tensor.Tensor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read tensor: %w", err)
	}

	t, err := DecodeTensor(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return t, nil
}

// ReadValueFile reads a serialized value whose message type follows t.
func ReadValueFile(path string, t TypeInfo) (tensor.Value, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read value: %w", err)
	}

	v, err := DecodeValue(b, t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return v, nil
}

// ParitySupported reports whether t can be passed to ONNX Runtime.
func ParitySupported(t *tensor.Tensor) bool {
	return t != nil && (t.DType() == tensor.Float32 || t.DType() == tensor.Int64)
}
