package engine

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// AttrSpec declares one attribute of an operator version. A nil Default
// with Required unset means the attribute is optional with no value.
type AttrSpec struct {
	Name     string
	Type     AttrType
	Required bool
	Default  *AttributeValue
}

func required(name string, t AttrType) AttrSpec {
	return AttrSpec{Name: name, Type: t, Required: true}
}

func optional(name string, t AttrType) AttrSpec {
	return AttrSpec{Name: name, Type: t}
}

func withDefault(name string, v AttributeValue) AttrSpec {
	return AttrSpec{Name: name, Type: v.Type, Default: &v}
}

// Operator is one version of an ONNX operator. Since is the opset version
// that introduced this behaviour; it stays current until the next entry
// with the same Name.
type Operator struct {
	Name      string
	Since     int
	MinInputs int
	// MaxInputs < 0 means variadic.
	MaxInputs int
	Outputs   int
	Attrs     []AttrSpec
	Compute   func(c *Call) ([]tensor.Value, error)
}

func (o *Operator) attrSpec(name string) (AttrSpec, bool) {
	for _, a := range o.Attrs {
		if a.Name == name {
			return a, true
		}
	}

	return AttrSpec{}, false
}

func (o *Operator) checkInputs(inputs []tensor.Value) error {
	n := len(inputs)
	if n < o.MinInputs || (o.MaxInputs >= 0 && n > o.MaxInputs) {
		want := fmt.Sprintf("%d..%d", o.MinInputs, o.MaxInputs)
		if o.MaxInputs < 0 {
			want = fmt.Sprintf("at least %d", o.MinInputs)
		} else if o.MinInputs == o.MaxInputs {
			want = fmt.Sprint(o.MinInputs)
		}

		return fmt.Errorf("engine: %s-%d: got %d inputs, want %s: %w", o.Name, o.Since, n, want, ErrArityMismatch)
	}

	for i := range o.MinInputs {
		if isAbsent(inputs[i]) {
			return fmt.Errorf("engine: %s-%d: required input %d is missing: %w", o.Name, o.Since, i, ErrArityMismatch)
		}
	}

	return nil
}

// resolveAttrs checks attrs against the schema and fills in defaults.
func (o *Operator) resolveAttrs(attrs Attributes) (*Attrs, error) {
	values := make(map[string]AttributeValue, len(o.Attrs))

	for name, v := range attrs {
		spec, ok := o.attrSpec(name)
		if !ok {
			return nil, fmt.Errorf("engine: %s-%d: unknown attribute %q: %w", o.Name, o.Since, name, ErrAttribute)
		}

		if v.Type != spec.Type {
			return nil, fmt.Errorf("engine: %s-%d: attribute %q is %v, want %v: %w", o.Name, o.Since, name, v.Type, spec.Type, ErrAttribute)
		}

		values[name] = v
	}

	for _, spec := range o.Attrs {
		if _, ok := values[spec.Name]; ok {
			continue
		}

		switch {
		case spec.Required:
			return nil, fmt.Errorf("engine: %s-%d: required attribute %q is missing: %w", o.Name, o.Since, spec.Name, ErrAttribute)
		case spec.Default != nil:
			values[spec.Name] = *spec.Default
		}
	}

	return &Attrs{op: o.Name, values: values}, nil
}

func isAbsent(v tensor.Value) bool {
	if v == nil {
		return true
	}

	switch x := v.(type) {
	case *tensor.Tensor:
		return x == nil
	case *tensor.Sequence:
		return x == nil
	case *tensor.Optional:
		return x == nil
	}

	return false
}

// Call is the state of one evaluation handed to Operator.Compute.
type Call struct {
	Op *Operator
	// Version is the requested opset after defaulting; Op.Since is the
	// version whose semantics apply.
	Version int
	Inputs  []tensor.Value
	Attrs   *Attrs

	rand func() *rand.Rand
}

// Input returns input i as a tensor, or nil when it is absent.
func (c *Call) Input(i int) (*tensor.Tensor, error) {
	if i >= len(c.Inputs) || isAbsent(c.Inputs[i]) {
		return nil, nil
	}

	t, ok := c.Inputs[i].(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("engine: %s: input %d is a %v, want tensor: %w", c.Op.Name, i, c.Inputs[i].ValueKind(), tensor.ErrUnsupportedDType)
	}

	return t, nil
}

// Tensors returns every present input as a tensor.
func (c *Call) Tensors() ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, 0, len(c.Inputs))

	for i := range c.Inputs {
		t, err := c.Input(i)
		if err != nil {
			return nil, err
		}

		if t != nil {
			out = append(out, t)
		}
	}

	return out, nil
}

// Rand returns the random source of this call.
func (c *Call) Rand() *rand.Rand { return c.rand() }

// registry maps operator names to their versions in ascending Since order.
var registry = buildRegistry(
	mathOperators(),
	logicOperators(),
	reduceOperators(),
	indexOperators(),
	shapeOperators(),
	matrixOperators(),
	nnOperators(),
	miscOperators(),
)

func buildRegistry(groups ...[]*Operator) map[string][]*Operator {
	reg := map[string][]*Operator{}

	for _, g := range groups {
		for _, op := range g {
			reg[op.Name] = append(reg[op.Name], op)
		}
	}

	for _, versions := range reg {
		slices.SortFunc(versions, func(a, b *Operator) int { return cmp.Compare(a.Since, b.Since) })
	}

	return reg
}

// versions clones op once per since version.
func versions(op Operator, since ...int) []*Operator {
	out := make([]*Operator, len(since))

	for i, s := range since {
		o := op
		o.Since = s
		out[i] = &o
	}

	return out
}

// Lookup returns the version of name with the highest Since not above
// version. Version 0 selects the latest.
func Lookup(name string, version int) (*Operator, error) {
	all, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("engine: operator %q: %w", name, ErrUnknownOperator)
	}

	if version <= 0 {
		return all[len(all)-1], nil
	}

	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Since <= version {
			return all[i], nil
		}
	}

	return nil, fmt.Errorf("engine: operator %q has no version <= %d (first is %d): %w", name, version, all[0].Since, ErrUnknownOperator)
}

// OperatorInfo lists the since versions of one operator.
type OperatorInfo struct {
	Name     string `json:"name"`
	Versions []int  `json:"versions"`
}

// Operators lists every registered operator sorted by name.
func Operators() []OperatorInfo {
	out := make([]OperatorInfo, 0, len(registry))

	for name, all := range registry {
		info := OperatorInfo{Name: name}
		for _, op := range all {
			info.Versions = append(info.Versions, op.Since)
		}

		out = append(out, info)
	}

	slices.SortFunc(out, func(a, b OperatorInfo) int { return strings.Compare(a.Name, b.Name) })

	return out
}
