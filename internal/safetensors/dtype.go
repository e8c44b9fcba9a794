package safetensors

import (
	"fmt"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

type storeDType struct {
	size  int
	dtype tensor.DType
}

// storeDTypes lists the header dtypes this package reads. BF16 has no tensor
// dtype of its own and decodes to float32.
var storeDTypes = map[string]storeDType{
	"F16":  {2, tensor.Float16},
	"BF16": {2, tensor.Float32},
	"F32":  {4, tensor.Float32},
	"F64":  {8, tensor.Float64},
	"I8":   {1, tensor.Int8},
	"I16":  {2, tensor.Int16},
	"I32":  {4, tensor.Int32},
	"I64":  {8, tensor.Int64},
	"U8":   {1, tensor.Uint8},
	"U16":  {2, tensor.Uint16},
	"U32":  {4, tensor.Uint32},
	"U64":  {8, tensor.Uint64},
	"BOOL": {1, tensor.Bool},
}

var headerDTypes = map[tensor.DType]string{
	tensor.Float16: "F16",
	tensor.Float32: "F32",
	tensor.Float64: "F64",
	tensor.Int8:    "I8",
	tensor.Int16:   "I16",
	tensor.Int32:   "I32",
	tensor.Int64:   "I64",
	tensor.Uint8:   "U8",
	tensor.Uint16:  "U16",
	tensor.Uint32:  "U32",
	tensor.Uint64:  "U64",
	tensor.Bool:    "BOOL",
}

func headerDType(d tensor.DType) (string, error) {
	name, ok := headerDTypes[d]
	if !ok {
		return "", fmt.Errorf("dtype %v: %w", d, tensor.ErrUnsupportedDType)
	}

	return name, nil
}
