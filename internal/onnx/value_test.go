package onnx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/cwbudde/go-onnxref/internal/testutil"
)

func TestDecodeValueSequence(t *testing.T) {
	a := mustTensor(t, []float32{1, 2}, 2)
	b := mustTensor(t, []float32{3}, 1)

	seq, err := tensor.NewSequence(tensor.Float32, a, b)
	if err != nil {
		t.Fatalf("NewSequence: %v", err)
	}

	typ := TypeInfo{Kind: tensor.KindSequence, Elem: &TypeInfo{Kind: tensor.KindTensor, DType: tensor.Float32}}

	got, err := DecodeValue(testutil.SequenceProto("s", seq), typ)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}

	if !tensor.ValuesEqual(got, seq) {
		t.Fatalf("got %v, want %v", got, seq)
	}
}

func TestDecodeValueEmptySequenceKeepsElemType(t *testing.T) {
	empty, _ := tensor.NewSequence(tensor.Int64)
	typ := TypeInfo{Kind: tensor.KindSequence, Elem: &TypeInfo{Kind: tensor.KindTensor, DType: tensor.Int64}}

	got, err := DecodeValue(testutil.SequenceProto("", empty), typ)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}

	seq, ok := got.(*tensor.Sequence)
	if !ok || seq.Len() != 0 || seq.ElemType() != tensor.Int64 {
		t.Fatalf("got %#v, want empty int64 sequence", got)
	}
}

func TestDecodeValueOptional(t *testing.T) {
	x := mustTensor(t, []int32{7, 8}, 2)
	some, _ := tensor.Some(x)

	tensorOpt := TypeInfo{Kind: tensor.KindOptional, Elem: &TypeInfo{Kind: tensor.KindTensor, DType: tensor.Int32}}

	got, err := DecodeValue(testutil.OptionalProto("o", some, testutil.TensorType(tensor.Int32)), tensorOpt)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}

	if !tensor.ValuesEqual(got, some) {
		t.Fatalf("got %v, want %v", got, some)
	}

	got, err = DecodeValue(testutil.OptionalProto("o", tensor.None(), testutil.TensorType(tensor.Int32)), tensorOpt)
	if err != nil {
		t.Fatalf("DecodeValue(None): %v", err)
	}

	if opt, ok := got.(*tensor.Optional); !ok || opt.HasValue() {
		t.Fatalf("got %#v, want empty optional", got)
	}

	seq, _ := tensor.NewSequence(tensor.Int32, x)
	someSeq, _ := tensor.Some(seq)
	seqOpt := TypeInfo{Kind: tensor.KindOptional, Elem: &TypeInfo{Kind: tensor.KindSequence, Elem: &TypeInfo{Kind: tensor.KindTensor, DType: tensor.Int32}}}

	got, err = DecodeValue(testutil.OptionalProto("o", someSeq, testutil.SequenceType(tensor.Int32)), seqOpt)
	if err != nil {
		t.Fatalf("DecodeValue(seq): %v", err)
	}

	if !tensor.ValuesEqual(got, someSeq) {
		t.Fatalf("got %v, want %v", got, someSeq)
	}
}

func TestDecodeValueRejectsMismatchedSequence(t *testing.T) {
	ints, _ := tensor.NewSequence(tensor.Int32, mustTensor(t, []int32{1}, 1))
	typ := TypeInfo{Kind: tensor.KindSequence, Elem: &TypeInfo{Kind: tensor.KindTensor, DType: tensor.Float32}}

	if _, err := DecodeValue(testutil.SequenceProto("", ints), typ); !errors.Is(err, tensor.ErrUnsupportedDType) {
		t.Fatalf("error = %v, want ErrUnsupportedDType", err)
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	x := mustTensor(t, []float64{1, 2, 3}, 3)

	path := filepath.Join(dir, "input_0.pb")
	if err := os.WriteFile(path, testutil.TensorProto("x", x), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadTensorFile(path)
	if err != nil {
		t.Fatalf("ReadTensorFile: %v", err)
	}

	if !tensor.Equal(got, x) {
		t.Fatalf("got %v, want %v", got, x)
	}

	v, err := ReadValueFile(path, TypeInfo{Kind: tensor.KindTensor, DType: tensor.Float64})
	if err != nil {
		t.Fatalf("ReadValueFile: %v", err)
	}

	if !tensor.ValuesEqual(v, x) {
		t.Fatalf("ReadValueFile = %v, want %v", v, x)
	}

	if _, err := ReadTensorFile(filepath.Join(dir, "missing.pb")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParitySupported(t *testing.T) {
	if !ParitySupported(tensor.Scalar(float32(1))) || !ParitySupported(tensor.Scalar(int64(1))) {
		t.Error("float32 and int64 should cross the ORT boundary")
	}

	if ParitySupported(tensor.Scalar(float64(1))) || ParitySupported(nil) {
		t.Error("float64 and nil should not cross the ORT boundary")
	}
}
