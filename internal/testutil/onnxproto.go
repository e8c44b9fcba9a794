package testutil

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/x448/float16"
	"google.golang.org/protobuf/encoding/protowire"
)

// Type describes a value type in a fixture model.
type Type struct {
	Kind  tensor.Kind
	DType tensor.DType
	Elem  *Type
}

func TensorType(dt tensor.DType) Type { return Type{Kind: tensor.KindTensor, DType: dt} }

func SequenceType(dt tensor.DType) Type {
	elem := TensorType(dt)
	return Type{Kind: tensor.KindSequence, Elem: &elem}
}

func OptionalType(elem Type) Type { return Type{Kind: tensor.KindOptional, Elem: &elem} }

// Value names a graph input or output.
type Value struct {
	Name string
	Type Type
}

// NodeModel is a single-node ModelProto in the layout of the ONNX backend
// node tests. An input with an empty Name is an omitted optional input.
type NodeModel struct {
	OpType     string
	Domain     string
	Opset      int64
	Inputs     []Value
	Outputs    []Value
	Attributes engine.Attributes
}

// Marshal encodes the model as ModelProto bytes.
func (m NodeModel) Marshal() []byte {
	var node []byte
	for _, in := range m.Inputs {
		node = appendString(node, 1, in.Name)
	}

	for _, out := range m.Outputs {
		node = appendString(node, 2, out.Name)
	}

	node = appendString(node, 4, m.OpType)

	names := make([]string, 0, len(m.Attributes))
	for name := range m.Attributes {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		node = appendMessage(node, 5, attributeProto(name, m.Attributes[name]))
	}

	if m.Domain != "" {
		node = appendString(node, 7, m.Domain)
	}

	graph := appendMessage(nil, 1, node)
	graph = appendString(graph, 2, "test_"+m.OpType)

	for _, in := range m.Inputs {
		if in.Name != "" {
			graph = appendMessage(graph, 11, valueInfoProto(in))
		}
	}

	for _, out := range m.Outputs {
		graph = appendMessage(graph, 12, valueInfoProto(out))
	}

	var model []byte
	model = protowire.AppendTag(model, 1, protowire.VarintType)
	model = protowire.AppendVarint(model, 8)
	model = appendString(model, 2, "onnxref-testutil")
	model = appendMessage(model, 7, graph)

	var opset []byte
	if m.Domain != "" {
		opset = appendString(opset, 1, m.Domain)
	}

	opset = protowire.AppendTag(opset, 2, protowire.VarintType)
	opset = protowire.AppendVarint(opset, uint64(m.Opset))

	return appendMessage(model, 8, opset)
}

func valueInfoProto(v Value) []byte {
	b := appendString(nil, 1, v.Name)
	return appendMessage(b, 2, typeProto(v.Type))
}

func typeProto(t Type) []byte {
	switch t.Kind {
	case tensor.KindSequence, tensor.KindOptional:
		var inner []byte
		if t.Elem != nil {
			inner = appendMessage(nil, 1, typeProto(*t.Elem))
		}

		num := protowire.Number(4)
		if t.Kind == tensor.KindOptional {
			num = 9
		}

		return appendMessage(nil, num, inner)
	}

	var tt []byte
	tt = protowire.AppendTag(tt, 1, protowire.VarintType)
	tt = protowire.AppendVarint(tt, uint64(t.DType.ONNX()))

	return appendMessage(nil, 1, tt)
}

func attributeProto(name string, v engine.AttributeValue) []byte {
	b := appendString(nil, 1, name)

	// AttributeProto.AttributeType
	var typ uint64

	switch v.Type {
	case engine.AttrFloat:
		typ = 1
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(float32(v.Float)))
	case engine.AttrInt:
		typ = 2
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v.Int))
	case engine.AttrString:
		typ = 3
		b = appendString(b, 4, v.Str)
	case engine.AttrTensor:
		typ = 4
		b = appendMessage(b, 5, TensorProto("", v.Tensor))
	case engine.AttrFloats:
		typ = 6

		var packed []byte
		for _, f := range v.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(float32(f)))
		}

		b = appendMessage(b, 7, packed)
	case engine.AttrInts:
		typ = 7

		var packed []byte
		for _, i := range v.Ints {
			packed = protowire.AppendVarint(packed, uint64(i))
		}

		b = appendMessage(b, 8, packed)
	case engine.AttrStrings:
		typ = 8
		for _, s := range v.Strings {
			b = appendString(b, 9, s)
		}
	}

	b = protowire.AppendTag(b, 20, protowire.VarintType)

	return protowire.AppendVarint(b, typ)
}

// TensorProto encodes t with raw_data.
func TensorProto(name string, t *tensor.Tensor) []byte {
	b := tensorHeader(name, t)
	return appendMessage(b, 9, rawBytes(t))
}

// TypedTensorProto encodes t with the typed repeated field ONNX assigns to
// its dtype instead of raw_data.
func TypedTensorProto(name string, t *tensor.Tensor) []byte {
	b := tensorHeader(name, t)

	var (
		num    protowire.Number
		packed []byte
	)

	switch data := t.RawData().(type) {
	case []float32:
		num = 4
		for _, v := range data {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
	case []float64:
		num = 10
		for _, v := range data {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
	case []int64:
		num = 7
		for _, v := range data {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
	case []uint32:
		num = 11
		for _, v := range data {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
	case []uint64:
		num = 11
		for _, v := range data {
			packed = protowire.AppendVarint(packed, v)
		}
	default:
		num = 5
		for i := range t.Len() {
			packed = protowire.AppendVarint(packed, int32Bits(data, i))
		}
	}

	if len(packed) == 0 {
		return b
	}

	return appendMessage(b, num, packed)
}

func int32Bits(data any, i int) uint64 {
	switch d := data.(type) {
	case []int32:
		return uint64(int64(d[i]))
	case []int16:
		return uint64(int64(d[i]))
	case []int8:
		return uint64(int64(d[i]))
	case []uint16:
		return uint64(d[i])
	case []uint8:
		return uint64(d[i])
	case []bool:
		if d[i] {
			return 1
		}

		return 0
	case []float16.Float16:
		return uint64(d[i].Bits())
	}

	panic(fmt.Sprintf("testutil: no int32_data encoding for %T", data))
}

func tensorHeader(name string, t *tensor.Tensor) []byte {
	var b []byte
	for _, d := range t.Shape() {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d))
	}

	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.DType().ONNX()))

	if name != "" {
		b = appendString(b, 8, name)
	}

	return b
}

func rawBytes(t *tensor.Tensor) []byte {
	le := binary.LittleEndian
	out := make([]byte, 0, t.Len()*t.DType().Size())

	switch data := t.RawData().(type) {
	case []float16.Float16:
		for _, v := range data {
			out = le.AppendUint16(out, v.Bits())
		}
	case []float32:
		for _, v := range data {
			out = le.AppendUint32(out, math.Float32bits(v))
		}
	case []float64:
		for _, v := range data {
			out = le.AppendUint64(out, math.Float64bits(v))
		}
	case []int8:
		for _, v := range data {
			out = append(out, byte(v))
		}
	case []int16:
		for _, v := range data {
			out = le.AppendUint16(out, uint16(v))
		}
	case []int32:
		for _, v := range data {
			out = le.AppendUint32(out, uint32(v))
		}
	case []int64:
		for _, v := range data {
			out = le.AppendUint64(out, uint64(v))
		}
	case []uint8:
		out = append(out, data...)
	case []uint16:
		for _, v := range data {
			out = le.AppendUint16(out, v)
		}
	case []uint32:
		for _, v := range data {
			out = le.AppendUint32(out, v)
		}
	case []uint64:
		for _, v := range data {
			out = le.AppendUint64(out, v)
		}
	case []bool:
		for _, v := range data {
			if v {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	}

	return out
}

// SequenceProto encodes a SequenceProto of tensors.
func SequenceProto(name string, s *tensor.Sequence) []byte {
	var b []byte
	if name != "" {
		b = appendString(b, 1, name)
	}

	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)

	for _, t := range s.Tensors() {
		b = appendMessage(b, 3, TensorProto("", t))
	}

	return b
}

// OptionalProto encodes an OptionalProto. An empty optional carries only
// its element type.
func OptionalProto(name string, o *tensor.Optional, elem Type) []byte {
	var b []byte
	if name != "" {
		b = appendString(b, 1, name)
	}

	// OptionalProto.DataType: TENSOR=1, SEQUENCE=3.
	elemType := uint64(1)
	if elem.Kind == tensor.KindSequence {
		elemType = 3
	}

	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, elemType)

	switch v := o.Value().(type) {
	case *tensor.Tensor:
		b = appendMessage(b, 3, TensorProto("", v))
	case *tensor.Sequence:
		b = appendMessage(b, 5, SequenceProto("", v))
	}

	return b
}

// ValueProto encodes v as the message its type calls for.
func ValueProto(name string, v tensor.Value, t Type) []byte {
	switch x := v.(type) {
	case *tensor.Sequence:
		return SequenceProto(name, x)
	case *tensor.Optional:
		var elem Type
		if t.Elem != nil {
			elem = *t.Elem
		}

		return OptionalProto(name, x, elem)
	case *tensor.Tensor:
		return TensorProto(name, x)
	}

	panic(fmt.Sprintf("testutil: cannot encode %T", v))
}

// WriteNodeCase writes root/name/model.onnx and
// root/name/test_data_set_0/{input,output}_N.pb. Inputs skip omitted
// optional slots of m. It returns the case directory.
func WriteNodeCase(tb testing.TB, root, name string, m NodeModel, inputs, outputs []tensor.Value) string {
	tb.Helper()

	dir := filepath.Join(root, name)
	data := filepath.Join(dir, "test_data_set_0")

	if err := os.MkdirAll(data, 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", data, err)
	}

	write := func(path string, b []byte) {
		if err := os.WriteFile(path, b, 0o644); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}

	write(filepath.Join(dir, "model.onnx"), m.Marshal())

	var declared []Value
	for _, in := range m.Inputs {
		if in.Name != "" {
			declared = append(declared, in)
		}
	}

	for i, v := range inputs {
		write(filepath.Join(data, fmt.Sprintf("input_%d.pb", i)), ValueProto(declared[i].Name, v, declared[i].Type))
	}

	for i, v := range outputs {
		write(filepath.Join(data, fmt.Sprintf("output_%d.pb", i)), ValueProto(m.Outputs[i].Name, v, m.Outputs[i].Type))
	}

	return dir
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}
