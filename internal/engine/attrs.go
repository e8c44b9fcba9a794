package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/spf13/cast"
)

// AttrType is the variant held by an AttributeValue.
type AttrType uint8

const (
	AttrUndefined AttrType = iota
	AttrInt
	AttrFloat
	AttrString
	AttrTensor
	AttrInts
	AttrFloats
	AttrStrings
)

var attrTypeNames = [...]string{
	AttrUndefined: "undefined",
	AttrInt:       "int",
	AttrFloat:     "float",
	AttrString:    "string",
	AttrTensor:    "tensor",
	AttrInts:      "ints",
	AttrFloats:    "floats",
	AttrStrings:   "strings",
}

func (t AttrType) String() string {
	if int(t) < len(attrTypeNames) {
		return attrTypeNames[t]
	}

	return fmt.Sprintf("AttrType(%d)", uint8(t))
}

// AttributeValue is a tagged union over the ONNX attribute kinds. Only the
// field selected by Type is meaningful.
type AttributeValue struct {
	Type    AttrType
	Int     int64
	Float   float64
	Str     string
	Tensor  *tensor.Tensor
	Ints    []int64
	Floats  []float64
	Strings []string
}

func IntAttr(v int64) AttributeValue { return AttributeValue{Type: AttrInt, Int: v} }

func FloatAttr(v float64) AttributeValue { return AttributeValue{Type: AttrFloat, Float: v} }

func StringAttr(v string) AttributeValue { return AttributeValue{Type: AttrString, Str: v} }

func TensorAttr(t *tensor.Tensor) AttributeValue { return AttributeValue{Type: AttrTensor, Tensor: t} }

func IntsAttr(v ...int64) AttributeValue { return AttributeValue{Type: AttrInts, Ints: v} }

func FloatsAttr(v ...float64) AttributeValue { return AttributeValue{Type: AttrFloats, Floats: v} }

func StringsAttr(v ...string) AttributeValue { return AttributeValue{Type: AttrStrings, Strings: v} }

// Interface returns the held value as a plain Go value.
func (v AttributeValue) Interface() any {
	switch v.Type {
	case AttrInt:
		return v.Int
	case AttrFloat:
		return v.Float
	case AttrString:
		return v.Str
	case AttrTensor:
		return v.Tensor
	case AttrInts:
		return v.Ints
	case AttrFloats:
		return v.Floats
	case AttrStrings:
		return v.Strings
	}

	return nil
}

// Attributes is the attribute set of one node invocation.
type Attributes map[string]AttributeValue

// Attrs is a validated attribute set with schema defaults applied. Getters
// fail with ErrAttribute when the name is absent or holds another type.
type Attrs struct {
	op     string
	values map[string]AttributeValue
}

// Has reports whether name was given or has a default.
func (a *Attrs) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

func (a *Attrs) get(name string, want AttrType) (AttributeValue, error) {
	v, ok := a.values[name]
	if !ok {
		return v, fmt.Errorf("engine: %s: attribute %q not set: %w", a.op, name, ErrAttribute)
	}

	if v.Type != want {
		return v, fmt.Errorf("engine: %s: attribute %q is %v, want %v: %w", a.op, name, v.Type, want, ErrAttribute)
	}

	return v, nil
}

func (a *Attrs) Int(name string) (int64, error) {
	v, err := a.get(name, AttrInt)
	return v.Int, err
}

// Bool reads an int attribute used as a flag.
func (a *Attrs) Bool(name string) (bool, error) {
	v, err := a.Int(name)
	return v != 0, err
}

func (a *Attrs) Float(name string) (float64, error) {
	v, err := a.get(name, AttrFloat)
	return v.Float, err
}

func (a *Attrs) Str(name string) (string, error) {
	v, err := a.get(name, AttrString)
	return v.Str, err
}

func (a *Attrs) Tensor(name string) (*tensor.Tensor, error) {
	v, err := a.get(name, AttrTensor)
	return v.Tensor, err
}

// Ints returns nil without error when name is absent, so optional list
// attributes can be told apart from explicitly empty ones.
func (a *Attrs) Ints(name string) ([]int64, error) {
	if !a.Has(name) {
		return nil, nil
	}

	v, err := a.get(name, AttrInts)
	if err != nil {
		return nil, err
	}

	if v.Ints == nil {
		return []int64{}, nil
	}

	return v.Ints, nil
}

func (a *Attrs) Floats(name string) ([]float64, error) {
	if !a.Has(name) {
		return nil, nil
	}

	v, err := a.get(name, AttrFloats)
	return v.Floats, err
}

func (a *Attrs) Strings(name string) ([]string, error) {
	if !a.Has(name) {
		return nil, nil
	}

	v, err := a.get(name, AttrStrings)
	return v.Strings, err
}

// Coerce converts a loosely typed value (a JSON number or array, a CLI
// string such as "1,2,3", a Go slice) to the schema type of attribute name.
func (o *Operator) Coerce(name string, raw any) (AttributeValue, error) {
	spec, ok := o.attrSpec(name)
	if !ok {
		return AttributeValue{}, fmt.Errorf("engine: %s-%d: unknown attribute %q: %w", o.Name, o.Since, name, ErrAttribute)
	}

	v, err := coerce(spec.Type, raw)
	if err != nil {
		return AttributeValue{}, fmt.Errorf("engine: %s-%d: attribute %q: %w: %w", o.Name, o.Since, name, ErrAttribute, err)
	}

	return v, nil
}

// CoerceAll applies Coerce to every entry of raw.
func (o *Operator) CoerceAll(raw map[string]any) (Attributes, error) {
	out := make(Attributes, len(raw))

	for name, r := range raw {
		v, err := o.Coerce(name, r)
		if err != nil {
			return nil, err
		}

		out[name] = v
	}

	return out, nil
}

func coerce(t AttrType, raw any) (AttributeValue, error) {
	if v, ok := raw.(AttributeValue); ok {
		if v.Type != t {
			return v, fmt.Errorf("have %v, want %v", v.Type, t)
		}

		return v, nil
	}

	switch t {
	case AttrInt:
		n, err := coerceInt(raw)
		return IntAttr(n), err
	case AttrFloat:
		f, err := cast.ToFloat64E(unwrapNumber(raw))
		return FloatAttr(f), err
	case AttrString:
		s, err := cast.ToStringE(raw)
		return StringAttr(s), err
	case AttrTensor:
		tt, ok := raw.(*tensor.Tensor)
		if !ok {
			return AttributeValue{}, fmt.Errorf("cannot use %T as tensor", raw)
		}

		return TensorAttr(tt), nil
	case AttrInts:
		items, err := listItems(raw)
		if err != nil {
			return AttributeValue{}, err
		}

		out := make([]int64, len(items))
		for i, it := range items {
			if out[i], err = coerceInt(it); err != nil {
				return AttributeValue{}, err
			}
		}

		return IntsAttr(out...), nil
	case AttrFloats:
		items, err := listItems(raw)
		if err != nil {
			return AttributeValue{}, err
		}

		out := make([]float64, len(items))
		for i, it := range items {
			if out[i], err = cast.ToFloat64E(unwrapNumber(it)); err != nil {
				return AttributeValue{}, err
			}
		}

		return FloatsAttr(out...), nil
	case AttrStrings:
		items, err := listItems(raw)
		if err != nil {
			return AttributeValue{}, err
		}

		out := make([]string, len(items))
		for i, it := range items {
			if out[i], err = cast.ToStringE(it); err != nil {
				return AttributeValue{}, err
			}
		}

		return StringsAttr(out...), nil
	}

	return AttributeValue{}, fmt.Errorf("unsupported attribute type %v", t)
}

func unwrapNumber(raw any) any {
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}

	return raw
}

// coerceInt rejects floats with a fractional part instead of truncating.
// Strings are always base 10.
func coerceInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	}

	return cast.ToInt64E(raw)
}

// listItems flattens a slice of any element type, or a comma-separated
// string with optional brackets, into its items.
func listItems(raw any) ([]any, error) {
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")

		if strings.TrimSpace(s) == "" {
			return []any{}, nil
		}

		parts := strings.Split(s, ",")

		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = strings.TrimSpace(p)
		}

		return out, nil
	}

	rv := reflect.ValueOf(raw)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("cannot use %T as a list", raw)
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, nil
}
