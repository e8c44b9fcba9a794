package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/cwbudde/go-onnxref/internal/safetensors"
	"github.com/cwbudde/go-onnxref/internal/server"
)

type evalOutput struct {
	Outputs []server.Value `json:"outputs"`
}

func decodeEval(t *testing.T, out string) evalOutput {
	t.Helper()

	var got evalOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode eval output: %v\n%s", err, out)
	}

	return got
}

func TestEval_AddFromTensorFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeTensorFile(t, dir, "a.pb", mustTensor(t, []float32{1, 2, 3, 4}, 2, 2))
	b := writeTensorFile(t, dir, "b.pb", mustTensor(t, []float32{10, 20}, 2))

	out, err := execute(t, "eval", "--op", "Add", "--input", a, "--input", b)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	got := decodeEval(t, out)
	if len(got.Outputs) != 1 {
		t.Fatalf("outputs = %d; want 1", len(got.Outputs))
	}

	y, err := got.Outputs[0].Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := mustTensor(t, []float32{11, 22, 13, 24}, 2, 2)
	if !tensor.Equal(y.(*tensor.Tensor), want) {
		t.Errorf("Add = %v; want %v", y, want)
	}
}

func TestEval_AttributesAndJSONInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.json")

	err := os.WriteFile(path, []byte(`{"dtype":"int64","shape":[2,3],"data":[1,2,3,4,5,6]}`), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := execute(t, "eval", "--op", "Transpose", "--attr", "perm=1,0", "--input", path)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	y, err := decodeEval(t, out).Outputs[0].Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := mustTensor(t, []int64{1, 4, 2, 5, 3, 6}, 3, 2)
	if !tensor.Equal(y.(*tensor.Tensor), want) {
		t.Errorf("Transpose = %v; want %v", y, want)
	}
}

func TestEval_SafetensorsInAndOut(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.safetensors")
	out := filepath.Join(dir, "out.safetensors")

	err := safetensors.WritePositional(in, inputPrefix, []*tensor.Tensor{
		mustTensor(t, []float64{-1.5, 2}, 2),
	})
	if err != nil {
		t.Fatalf("WritePositional: %v", err)
	}

	if _, err := execute(t, "eval", "--op", "Abs", "--input", in, "--out", out); err != nil {
		t.Fatalf("eval: %v", err)
	}

	got, err := safetensors.ReadPositional(out, outputPrefix)
	if err != nil {
		t.Fatalf("ReadPositional: %v", err)
	}

	want := mustTensor(t, []float64{1.5, 2}, 2)
	if len(got) != 1 || !tensor.Equal(got[0], want) {
		t.Errorf("Abs = %v; want [%v]", got, want)
	}
}

func TestEval_SeededBernoulliIsReproducible(t *testing.T) {
	dir := t.TempDir()
	p := writeTensorFile(t, dir, "p.pb", mustTensor(t, []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, 8))

	first, err := execute(t, "eval", "--op", "Bernoulli", "--seed", "3", "--input", p)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	second, err := execute(t, "eval", "--op", "Bernoulli", "--seed", "3", "--input", p)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}

	if first != second {
		t.Errorf("seeded runs differ:\n%s\n%s", first, second)
	}
}

func TestEval_Errors(t *testing.T) {
	dir := t.TempDir()
	x := writeTensorFile(t, dir, "x.pb", mustTensor(t, []float32{1}, 1))

	tests := []struct {
		name string
		args []string
	}{
		{"missing op", []string{"eval", "--input", x}},
		{"unknown op", []string{"eval", "--op", "Frobnicate", "--input", x}},
		{"missing input file", []string{"eval", "--op", "Abs", "--input", filepath.Join(dir, "nope.pb")}},
		{"bad attr syntax", []string{"eval", "--op", "Softmax", "--attr", "axis", "--input", x}},
		{"unknown attr", []string{"eval", "--op", "Abs", "--attr", "alpha=1", "--input", x}},
		{"arity", []string{"eval", "--op", "Abs", "--input", x, "--input", x}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Fatal("want error")
			}
		})
	}
}

func TestLoadInputs_EmptyPathIsOmitted(t *testing.T) {
	dir := t.TempDir()
	x := writeTensorFile(t, dir, "x.pb", mustTensor(t, []float32{1}, 1))

	got, err := loadInputs([]string{x, ""})
	if err != nil {
		t.Fatalf("loadInputs: %v", err)
	}

	if len(got) != 2 || got[1] != nil {
		t.Fatalf("loadInputs = %v; want [x <nil>]", got)
	}
}

func TestOutputElements(t *testing.T) {
	seq, err := tensor.NewSequence(tensor.Int32, mustTensor(t, []int32{1, 2}, 2), mustTensor(t, []int32{3}, 1))
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}

	some, err := tensor.Some(mustTensor(t, []float32{1, 2, 3, 4}, 2, 2))
	if err != nil {
		t.Fatalf("Some: %v", err)
	}

	got := outputElements([]tensor.Value{mustTensor(t, []float32{1, 2, 3}, 3), seq, some, tensor.None()})
	if got != 10 {
		t.Errorf("outputElements = %d; want 10", got)
	}
}
