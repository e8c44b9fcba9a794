// Package conformance runs ONNX backend node test cases against the
// reference engine.
package conformance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/onnx"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

const dataSetDir = "test_data_set_0"

// Case is one node test: a single-node model plus its recorded inputs and
// expected outputs. Inputs and Expected are indexed by node input and
// output position; omitted optional slots are nil.
type Case struct {
	Name       string
	Dir        string
	Descriptor engine.Descriptor
	Node       *onnx.Node
	Inputs     []tensor.Value
	Expected   []tensor.Value
	// InputNames holds the graph input name for each non-nil Inputs slot.
	InputNames []string
	// Err is set when the case could not be loaded. Such cases are
	// reported, never evaluated.
	Err error

	initializers map[string]bool
}

// LoadCase reads dir/model.onnx and dir/test_data_set_0. Each .pb file is
// decoded by the type its graph input or output declares.
func LoadCase(dir string) (*Case, error) {
	c := &Case{Name: filepath.Base(dir), Dir: dir}

	model, err := onnx.LoadModel(filepath.Join(dir, "model.onnx"))
	if err != nil {
		return c, err
	}

	node, err := model.Graph.Node()
	if err != nil {
		return c, err
	}

	c.Node = node

	if c.Descriptor, err = model.Descriptor(node); err != nil {
		return c, err
	}

	data := filepath.Join(dir, dataSetDir)

	graphInputs := map[string]int{}
	for i, vi := range model.Graph.Inputs {
		graphInputs[vi.Name] = i
	}

	c.Inputs = make([]tensor.Value, len(node.Inputs))
	c.InputNames = make([]string, len(node.Inputs))

	for pos, name := range node.Inputs {
		if name == "" {
			continue
		}

		if init, ok := model.Graph.Initializers[name]; ok {
			c.Inputs[pos] = init
			c.InputNames[pos] = name

			if c.initializers == nil {
				c.initializers = map[string]bool{}
			}

			c.initializers[name] = true

			continue
		}

		i, ok := graphInputs[name]
		if !ok {
			return c, fmt.Errorf("conformance: %s: node input %q is not a graph input", c.Name, name)
		}

		path := filepath.Join(data, fmt.Sprintf("input_%d.pb", i))

		v, err := onnx.ReadValueFile(path, model.Graph.Inputs[i].Type)
		if err != nil {
			return c, err
		}

		c.Inputs[pos] = v
		c.InputNames[pos] = name
	}

	// Trailing omitted inputs do not count towards arity.
	for len(c.Inputs) > 0 && c.Inputs[len(c.Inputs)-1] == nil {
		c.Inputs = c.Inputs[:len(c.Inputs)-1]
		c.InputNames = c.InputNames[:len(c.InputNames)-1]
	}

	graphOutputs := map[string]int{}
	for i, vi := range model.Graph.Outputs {
		graphOutputs[vi.Name] = i
	}

	c.Expected = make([]tensor.Value, len(node.Outputs))

	for pos, name := range node.Outputs {
		i, ok := graphOutputs[name]
		if name == "" || !ok {
			continue
		}

		path := filepath.Join(data, fmt.Sprintf("output_%d.pb", i))

		v, err := onnx.ReadValueFile(path, model.Graph.Outputs[i].Type)
		if err != nil {
			return c, err
		}

		c.Expected[pos] = v
	}

	return c, nil
}

// LoadCases loads every case directory under root whose name contains
// filter. A case that fails to load is returned with Err set; only a
// failure to read root itself is an error.
func LoadCases(root, filter string) ([]*Case, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("conformance: read test data: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() && strings.Contains(e.Name(), filter) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	cases := make([]*Case, 0, len(names))

	for _, name := range names {
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, "model.onnx")); err != nil {
			continue
		}

		c, err := LoadCase(dir)
		if err != nil {
			c.Err = err
		}

		cases = append(cases, c)
	}

	return cases, nil
}

// unsupported reports load or evaluation errors that mark a case as
// skipped rather than failed.
func unsupported(err error) bool {
	return errors.Is(err, onnx.ErrUnsupported) ||
		errors.Is(err, tensor.ErrUnsupportedDType) ||
		errors.Is(err, engine.ErrUnknownOperator)
}
