package engine

import (
	"errors"

	"github.com/cwbudde/go-onnxref/internal/runtime/ops"
	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

var (
	// ErrUnknownOperator reports a name or opset version with no registered
	// operator.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrArityMismatch reports a wrong number of inputs or a missing required
	// input.
	ErrArityMismatch = errors.New("arity mismatch")
	// ErrAttribute reports an unknown, missing, mistyped or invalid attribute.
	ErrAttribute = errors.New("attribute error")
	// ErrInternal reports a kernel that panicked instead of returning an
	// error. Kind maps it to "Internal".
	ErrInternal = errors.New("internal error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnknownOperator, "UnknownOperator"},
	{ErrArityMismatch, "ArityMismatch"},
	{ErrAttribute, "AttributeError"},
	{ops.ErrInvalidEquation, "AttributeError"},
	{ops.ErrInvalidSqueeze, "InvalidSqueeze"},
	{tensor.ErrShapeMismatch, "ShapeMismatch"},
	{tensor.ErrInvalidShape, "InvalidShape"},
	{tensor.ErrBroadcast, "BroadcastError"},
	{tensor.ErrAxisOutOfRange, "AxisOutOfRange"},
	{tensor.ErrDuplicateAxis, "DuplicateAxis"},
	{tensor.ErrIndexOutOfRange, "IndexOutOfRange"},
	{tensor.ErrUnsupportedDType, "UnsupportedDtype"},
}

// Kind returns the taxonomy name of err: "UnknownOperator", "ShapeMismatch"
// and so on. Errors outside the taxonomy are "Internal"; nil is "".
func Kind(err error) string {
	if err == nil {
		return ""
	}

	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}

	return "Internal"
}
