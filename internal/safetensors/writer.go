package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
	"github.com/x448/float16"
)

// Named pairs a tensor with the name it is stored under.
type Named struct {
	Name   string
	Tensor *tensor.Tensor
}

// EncodeTensors serializes tensors into safetensors format, ordered by name.
func EncodeTensors(tensors []Named) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	sorted := make([]Named, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	header := make(map[string]storeHeaderEntry, len(sorted))
	raw := make([]byte, 0, estimateTensorBytes(sorted))

	for _, nt := range sorted {
		name := strings.TrimSpace(nt.Name)
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}

		if _, exists := header[name]; exists {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		if nt.Tensor == nil {
			return nil, fmt.Errorf("safetensors: tensor %q is nil", name)
		}

		dtype, err := headerDType(nt.Tensor.DType())
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		start := len(raw)
		raw = appendTensorData(raw, nt.Tensor.RawData())
		end := len(raw)

		header[name] = storeHeaderEntry{
			DType:   dtype,
			Shape:   nt.Tensor.Shape(),
			Offsets: [2]int{start, end},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 0, 8+len(headerJSON)+len(raw))
	out = binary.LittleEndian.AppendUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

// WriteFile writes tensors into a .safetensors file.
func WriteFile(path string, tensors []Named) error {
	data, err := EncodeTensors(tensors)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

func appendTensorData(dst []byte, data any) []byte {
	le := binary.LittleEndian

	switch v := data.(type) {
	case []float16.Float16:
		for _, x := range v {
			dst = le.AppendUint16(dst, x.Bits())
		}
	case []float32:
		for _, x := range v {
			dst = le.AppendUint32(dst, math.Float32bits(x))
		}
	case []float64:
		for _, x := range v {
			dst = le.AppendUint64(dst, math.Float64bits(x))
		}
	case []int8:
		for _, x := range v {
			dst = append(dst, byte(x))
		}
	case []int16:
		for _, x := range v {
			dst = le.AppendUint16(dst, uint16(x))
		}
	case []int32:
		for _, x := range v {
			dst = le.AppendUint32(dst, uint32(x))
		}
	case []int64:
		for _, x := range v {
			dst = le.AppendUint64(dst, uint64(x))
		}
	case []uint8:
		dst = append(dst, v...)
	case []uint16:
		for _, x := range v {
			dst = le.AppendUint16(dst, x)
		}
	case []uint32:
		for _, x := range v {
			dst = le.AppendUint32(dst, x)
		}
	case []uint64:
		for _, x := range v {
			dst = le.AppendUint64(dst, x)
		}
	case []bool:
		for _, x := range v {
			if x {
				dst = append(dst, 1)
			} else {
				dst = append(dst, 0)
			}
		}
	}

	return dst
}

func estimateTensorBytes(tensors []Named) int {
	total := 0
	for _, nt := range tensors {
		if nt.Tensor != nil {
			total += nt.Tensor.Len() * nt.Tensor.DType().Size()
		}
	}

	return total
}
