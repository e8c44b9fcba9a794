package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrUnsupported reports valid ONNX content this package does not model,
// such as graph attributes, maps and sparse tensors.
var ErrUnsupported = errors.New("onnx: unsupported")

// Model is the subset of ModelProto needed to run single-node test cases.
type Model struct {
	IRVersion    int64
	ProducerName string
	// Opsets maps an operator set domain to its version. The default
	// domain is stored under "".
	Opsets map[string]int64
	Graph  *Graph
}

// Opset returns the imported version of domain, or 0. "ai.onnx" and ""
// name the same domain.
func (m *Model) Opset(domain string) int64 {
	return m.Opsets[normalizeDomain(domain)]
}

type Graph struct {
	Name         string
	Nodes        []*Node
	Initializers map[string]*tensor.Tensor
	Inputs       []ValueInfo
	Outputs      []ValueInfo
}

type Node struct {
	Name       string
	OpType     string
	Domain     string
	Inputs     []string
	Outputs    []string
	Attributes engine.Attributes
}

type ValueInfo struct {
	Name string
	Type TypeInfo
}

// TypeInfo describes a declared value type. Shape is nil for unranked
// tensors; symbolic or unknown dimensions are -1.
type TypeInfo struct {
	Kind  tensor.Kind
	DType tensor.DType
	Shape []int64
	Elem  *TypeInfo
}

func (t TypeInfo) String() string {
	switch t.Kind {
	case tensor.KindTensor:
		return fmt.Sprintf("tensor(%v)", t.DType)
	case tensor.KindSequence, tensor.KindOptional:
		prefix := "seq"
		if t.Kind == tensor.KindOptional {
			prefix = "optional"
		}

		if t.Elem == nil {
			return prefix + "(?)"
		}

		return prefix + "(" + t.Elem.String() + ")"
	}

	return "undefined"
}

// ModelProto and friends.
const (
	modelIRVersion    = 1
	modelProducerName = 2
	modelGraph        = 7
	modelOpsetImport  = 8

	opsetDomain  = 1
	opsetVersion = 2

	graphNode        = 1
	graphName        = 2
	graphInitializer = 5
	graphInput       = 11
	graphOutput      = 12

	nodeInput     = 1
	nodeOutput    = 2
	nodeName      = 3
	nodeOpType    = 4
	nodeAttribute = 5
	nodeDomain    = 7

	valueInfoName = 1
	valueInfoType = 2

	typeTensor       = 1
	typeSequence     = 4
	typeMap          = 5
	typeSparseTensor = 8
	typeOptional     = 9

	typeElemType = 1
	typeShape    = 2
	shapeDim     = 1
	dimValue     = 1
)

// LoadModel reads and decodes an ONNX model file.
func LoadModel(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("onnx: read model: %w", err)
	}

	m, err := DecodeModel(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return m, nil
}

func DecodeModel(b []byte) (*Model, error) {
	m := &Model{Opsets: map[string]int64{}}

	err := walk(b, func(f field) error {
		switch f.num {
		case modelIRVersion:
			m.IRVersion = f.int64()
		case modelProducerName:
			m.ProducerName = f.str()
		case modelGraph:
			if err := expect(f, protowire.BytesType); err != nil {
				return err
			}

			g, err := decodeGraph(f.b)
			if err != nil {
				return err
			}

			m.Graph = g
		case modelOpsetImport:
			domain, version, err := decodeOpset(f.b)
			if err != nil {
				return err
			}

			m.Opsets[normalizeDomain(domain)] = version
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if m.Graph == nil {
		return nil, fmt.Errorf("%w: model has no graph", ErrMalformed)
	}

	return m, nil
}

func normalizeDomain(d string) string {
	if d == "ai.onnx" {
		return ""
	}

	return d
}

func decodeOpset(b []byte) (string, int64, error) {
	var (
		domain  string
		version int64
	)

	err := walk(b, func(f field) error {
		switch f.num {
		case opsetDomain:
			domain = f.str()
		case opsetVersion:
			version = f.int64()
		}

		return nil
	})

	return domain, version, err
}

func decodeGraph(b []byte) (*Graph, error) {
	g := &Graph{Initializers: map[string]*tensor.Tensor{}}

	err := walk(b, func(f field) error {
		switch f.num {
		case graphNode:
			n, err := decodeNode(f.b)
			if err != nil {
				return err
			}

			g.Nodes = append(g.Nodes, n)
		case graphName:
			g.Name = f.str()
		case graphInitializer:
			t, name, err := decodeNamedTensor(f.b)
			if err != nil {
				return err
			}

			g.Initializers[name] = t
		case graphInput, graphOutput:
			vi, err := decodeValueInfo(f.b)
			if err != nil {
				return err
			}

			if f.num == graphInput {
				g.Inputs = append(g.Inputs, vi)
			} else {
				g.Outputs = append(g.Outputs, vi)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return g, nil
}

func decodeNode(b []byte) (*Node, error) {
	n := &Node{Attributes: engine.Attributes{}}

	err := walk(b, func(f field) error {
		switch f.num {
		case nodeInput:
			n.Inputs = append(n.Inputs, f.str())
		case nodeOutput:
			n.Outputs = append(n.Outputs, f.str())
		case nodeName:
			n.Name = f.str()
		case nodeOpType:
			n.OpType = f.str()
		case nodeDomain:
			n.Domain = f.str()
		case nodeAttribute:
			name, v, err := decodeAttribute(f.b)
			if err != nil {
				return fmt.Errorf("onnx: node %s: attribute %q: %w", n.OpType, name, err)
			}

			n.Attributes[name] = v
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return n, nil
}

func decodeValueInfo(b []byte) (ValueInfo, error) {
	var vi ValueInfo

	err := walk(b, func(f field) error {
		switch f.num {
		case valueInfoName:
			vi.Name = f.str()
		case valueInfoType:
			t, err := decodeType(f.b)
			if err != nil {
				return fmt.Errorf("onnx: value %q: %w", vi.Name, err)
			}

			vi.Type = t
		}

		return nil
	})

	return vi, err
}

func decodeType(b []byte) (TypeInfo, error) {
	var t TypeInfo

	err := walk(b, func(f field) error {
		var err error

		switch f.num {
		case typeTensor:
			t.Kind = tensor.KindTensor
			err = decodeTensorType(f.b, &t)
		case typeSequence, typeOptional:
			t.Kind = tensor.KindSequence
			if f.num == typeOptional {
				t.Kind = tensor.KindOptional
			}

			t.Elem, err = decodeElemType(f.b)
		case typeMap:
			err = fmt.Errorf("map types: %w", ErrUnsupported)
		case typeSparseTensor:
			err = fmt.Errorf("sparse tensor types: %w", ErrUnsupported)
		}

		return err
	})

	return t, err
}

func decodeTensorType(b []byte, t *TypeInfo) error {
	return walk(b, func(f field) error {
		switch f.num {
		case typeElemType:
			if f.int64() == onnxString {
				return fmt.Errorf("string tensors: %w", tensor.ErrUnsupportedDType)
			}

			dt, err := tensor.DTypeFromONNX(f.int64())
			if err != nil {
				return err
			}

			t.DType = dt
		case typeShape:
			t.Shape = []int64{}

			return walk(f.b, func(d field) error {
				if d.num != shapeDim {
					return nil
				}

				dim := int64(-1)

				err := walk(d.b, func(v field) error {
					if v.num == dimValue {
						dim = v.int64()
					}

					return nil
				})

				t.Shape = append(t.Shape, dim)

				return err
			})
		}

		return nil
	})
}

func decodeElemType(b []byte) (*TypeInfo, error) {
	var elem *TypeInfo

	err := walk(b, func(f field) error {
		if f.num != typeElemType {
			return nil
		}

		t, err := decodeType(f.b)
		if err != nil {
			return err
		}

		elem = &t

		return nil
	})

	return elem, err
}

// AttributeProto field numbers and AttributeType values.
const (
	attrName    = 1
	attrF       = 2
	attrI       = 3
	attrS       = 4
	attrT       = 5
	attrG       = 6
	attrFloats  = 7
	attrInts    = 8
	attrStrings = 9
	attrTensors = 10
	attrGraphs  = 11
	attrType    = 20

	attrTypeFloat   = 1
	attrTypeInt     = 2
	attrTypeString  = 3
	attrTypeTensor  = 4
	attrTypeFloats  = 6
	attrTypeInts    = 7
	attrTypeStrings = 8
)

type attributeProto struct {
	name    string
	typ     int64
	f       float64
	i       int64
	s       []byte
	t       []byte
	floats  []uint32
	ints    []uint64
	strings []string
	seen    map[protowire.Number]bool
}

func decodeAttribute(b []byte) (string, engine.AttributeValue, error) {
	a := &attributeProto{seen: map[protowire.Number]bool{}}

	err := walk(b, func(f field) error {
		var err error

		a.seen[f.num] = true

		switch f.num {
		case attrName:
			a.name = f.str()
		case attrF:
			if err = expect(f, protowire.Fixed32Type); err == nil {
				a.f = float64(math.Float32frombits(uint32(f.u)))
			}
		case attrI:
			a.i = f.int64()
		case attrS:
			a.s = f.b
		case attrT:
			a.t = f.b
		case attrFloats:
			a.floats, err = fixed32s(a.floats, f)
		case attrInts:
			a.ints, err = varints(a.ints, f)
		case attrStrings:
			a.strings = append(a.strings, f.str())
		case attrType:
			a.typ = f.int64()
		}

		return err
	})
	if err != nil {
		return a.name, engine.AttributeValue{}, err
	}

	v, err := a.value()

	return a.name, v, err
}

func (a *attributeProto) value() (engine.AttributeValue, error) {
	typ := a.typ
	if typ == 0 {
		typ = a.inferType()
	}

	switch typ {
	case attrTypeFloat:
		return engine.FloatAttr(a.f), nil
	case attrTypeInt:
		return engine.IntAttr(a.i), nil
	case attrTypeString:
		return engine.StringAttr(string(a.s)), nil
	case attrTypeTensor:
		t, err := DecodeTensor(a.t)
		if err != nil {
			return engine.AttributeValue{}, err
		}

		return engine.TensorAttr(t), nil
	case attrTypeFloats:
		fs := make([]float64, len(a.floats))
		for i, bits := range a.floats {
			fs[i] = float64(math.Float32frombits(bits))
		}

		return engine.FloatsAttr(fs...), nil
	case attrTypeInts:
		is := make([]int64, len(a.ints))
		for i, u := range a.ints {
			is[i] = int64(u)
		}

		return engine.IntsAttr(is...), nil
	case attrTypeStrings:
		return engine.StringsAttr(append([]string{}, a.strings...)...), nil
	}

	return engine.AttributeValue{}, fmt.Errorf("attribute type %d: %w", typ, ErrUnsupported)
}

// inferType handles producers that predate the type field.
func (a *attributeProto) inferType() int64 {
	switch {
	case a.seen[attrF]:
		return attrTypeFloat
	case a.seen[attrI]:
		return attrTypeInt
	case a.seen[attrS]:
		return attrTypeString
	case a.seen[attrT]:
		return attrTypeTensor
	case a.seen[attrFloats]:
		return attrTypeFloats
	case a.seen[attrInts]:
		return attrTypeInts
	case a.seen[attrStrings]:
		return attrTypeStrings
	case a.seen[attrG], a.seen[attrGraphs], a.seen[attrTensors]:
		return -1
	}

	return 0
}

// Node returns the single node of a test-case graph.
func (g *Graph) Node() (*Node, error) {
	if len(g.Nodes) != 1 {
		return nil, fmt.Errorf("onnx: graph %q has %d nodes, want 1: %w", g.Name, len(g.Nodes), ErrUnsupported)
	}

	return g.Nodes[0], nil
}

// Descriptor builds the engine descriptor for n under the model's opset
// imports. Custom domains are rejected.
func (m *Model) Descriptor(n *Node) (engine.Descriptor, error) {
	domain := normalizeDomain(n.Domain)
	if domain != "" {
		return engine.Descriptor{}, fmt.Errorf("onnx: node %s: domain %q: %w", n.OpType, n.Domain, ErrUnsupported)
	}

	return engine.Descriptor{Name: n.OpType, Version: int(m.Opset(domain))}, nil
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s) -> %s", n.OpType, strings.Join(n.Inputs, ", "), strings.Join(n.Outputs, ", "))
}
