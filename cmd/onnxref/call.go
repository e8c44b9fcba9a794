package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/onnx"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/cwbudde/go-onnxref/internal/safetensors"
	"github.com/cwbudde/go-onnxref/internal/server"
	"github.com/spf13/pflag"
)

// inputPrefix names positional tensors in .safetensors input and output
// files: input_0, input_1, ...
const (
	inputPrefix  = "input_"
	outputPrefix = "output_"
)

// callFlags describe one operator invocation on the command line.
type callFlags struct {
	op      string
	version int
	inputs  []string
	attrs   []string
	seed    int64
}

func (f *callFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.op, "op", "", "Operator name (required)")
	fs.IntVar(&f.version, "version", 0, "Opset version (0 = engine default)")
	fs.StringArrayVar(&f.inputs, "input", nil, "Input file (.pb, .json or .safetensors); repeat in order, empty for an omitted optional input")
	fs.StringArrayVar(&f.attrs, "attr", nil, "Attribute as name=value; lists as 1,2,3; tensors as name=@file.pb")
	fs.Int64Var(&f.seed, "seed", -1, "Seed for this call's random source (negative = engine default)")
}

type call struct {
	desc   engine.Descriptor
	op     *engine.Operator
	inputs []tensor.Value
	attrs  engine.Attributes
	opts   []engine.EvalOption
}

func (f *callFlags) build(eng *engine.Engine) (*call, error) {
	if strings.TrimSpace(f.op) == "" {
		return nil, fmt.Errorf("--op is required")
	}

	desc := engine.Descriptor{Name: f.op, Version: f.version}

	op, err := eng.Resolve(desc)
	if err != nil {
		return nil, err
	}

	inputs, err := loadInputs(f.inputs)
	if err != nil {
		return nil, err
	}

	attrs, err := parseAttrs(op, f.attrs)
	if err != nil {
		return nil, err
	}

	c := &call{desc: desc, op: op, inputs: inputs, attrs: attrs}
	if f.seed >= 0 {
		c.opts = append(c.opts, engine.WithRand(rand.New(rand.NewPCG(uint64(f.seed), 0))))
	}

	return c, nil
}

func (c *call) evaluate(eng *engine.Engine) ([]tensor.Value, error) {
	return eng.Evaluate(c.desc, c.inputs, c.attrs, c.opts...)
}

// loadInputs reads each path by extension. A .safetensors file contributes
// all of its input_N tensors in order; an empty path is an omitted input.
func loadInputs(paths []string) ([]tensor.Value, error) {
	var out []tensor.Value

	for _, p := range paths {
		if p == "" {
			out = append(out, nil)
			continue
		}

		switch strings.ToLower(filepath.Ext(p)) {
		case ".safetensors":
			ts, err := safetensors.ReadPositional(p, inputPrefix)
			if err != nil {
				return nil, err
			}

			for _, t := range ts {
				out = append(out, t)
			}
		case ".json":
			v, err := readJSONValue(p)
			if err != nil {
				return nil, err
			}

			out = append(out, v)
		default:
			t, err := onnx.ReadTensorFile(p)
			if err != nil {
				return nil, err
			}

			out = append(out, t)
		}
	}

	return out, nil
}

func readJSONValue(path string) (tensor.Value, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var v server.Value
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	tv, err := v.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return tv, nil
}

func parseAttrs(op *engine.Operator, specs []string) (engine.Attributes, error) {
	raw := make(map[string]any, len(specs))

	for _, s := range specs {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)

		if !ok || name == "" {
			return nil, fmt.Errorf("--attr %q: want name=value", s)
		}

		if path, isFile := strings.CutPrefix(value, "@"); isFile {
			t, err := onnx.ReadTensorFile(path)
			if err != nil {
				return nil, fmt.Errorf("--attr %s: %w", name, err)
			}

			raw[name] = t

			continue
		}

		raw[name] = value
	}

	return op.CoerceAll(raw)
}

func outputElements(vs []tensor.Value) int64 {
	var n int64

	for _, v := range vs {
		switch x := v.(type) {
		case *tensor.Tensor:
			n += int64(x.Len())
		case *tensor.Sequence:
			for _, t := range x.Tensors() {
				n += int64(t.Len())
			}
		case *tensor.Optional:
			if x.HasValue() {
				n += outputElements([]tensor.Value{x.Value()})
			}
		}
	}

	return n
}
