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

// KeyMapper renames a stored tensor or drops it when keep is false.
type KeyMapper func(name string) (mapped string, keep bool)

type RemapMode string

const (
	RemapLenient RemapMode = "lenient"
	RemapStrict  RemapMode = "strict"
)

type StoreOptions struct {
	KeyMapper KeyMapper
	RemapMode RemapMode
}

// Store indexes the tensors of one safetensors payload. Tensor data is
// decoded lazily on access.
type Store struct {
	raw     []byte
	entries map[string]storeEntry
	names   []string
}

type storeEntry struct {
	OriginalName string
	DType        string
	Shape        []int64
	Start        int
	End          int
}

type storeHeaderEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

func OpenStore(path string, opts StoreOptions) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return OpenStoreFromBytes(data, opts)
}

func OpenStoreFromBytes(data []byte, opts StoreOptions) (*Store, error) {
	keyMapper := opts.KeyMapper
	if keyMapper == nil {
		keyMapper = func(name string) (string, bool) { return name, true }
	}

	strict := opts.RemapMode == RemapStrict

	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(header))
	for name := range header {
		if name != "__metadata__" {
			keys = append(keys, name)
		}
	}

	sort.Strings(keys)

	st := &Store{raw: data, entries: make(map[string]storeEntry, len(keys))}

	for _, original := range keys {
		entry, err := locate(original, header[original], headerEnd, len(data))
		if err != nil {
			return nil, err
		}

		mapped, keep := keyMapper(original)
		mapped = strings.TrimSpace(mapped)

		switch {
		case !keep && strict:
			return nil, fmt.Errorf("safetensors: strict remap rejected tensor %q", original)
		case !keep:
			continue
		case mapped == "":
			return nil, fmt.Errorf("safetensors: remapped tensor name for %q is empty", original)
		}

		if _, dup := st.entries[mapped]; dup {
			if strict {
				return nil, fmt.Errorf("safetensors: strict remap collision for %q", mapped)
			}

			continue
		}

		st.entries[mapped] = entry
		st.names = append(st.names, mapped)
	}

	if len(st.entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	sort.Strings(st.names)

	return st, nil
}

// locate validates one header entry and resolves its byte range in a file
// of size bytes whose data section starts at base.
func locate(name string, raw json.RawMessage, base, size int) (storeEntry, error) {
	var h storeHeaderEntry
	if err := json.Unmarshal(raw, &h); err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: decode header entry %q: %w", name, err)
	}

	if err := validateHeaderEntry(name, h); err != nil {
		return storeEntry{}, err
	}

	start, end := base+h.Offsets[0], base+h.Offsets[1]
	if end > size {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q data [%d:%d] exceeds file size %d", name, start, end, size)
	}

	n, err := shapeElementCount(h.Shape)
	if err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	dtype := strings.ToUpper(h.DType)
	if want := int(n) * storeDTypes[dtype].size; end-start != want {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q has %d data bytes, shape %v of %s needs %d", name, end-start, h.Shape, dtype, want)
	}

	return storeEntry{
		OriginalName: name,
		DType:        dtype,
		Shape:        append([]int64(nil), h.Shape...),
		Start:        start,
		End:          end,
	}, nil
}

func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Tensor decodes the named tensor. BF16 data widens to float32; every other
// stored dtype keeps its element type.
func (s *Store) Tensor(name string) (*tensor.Tensor, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	data, err := decodeTensorData(s.raw[entry.Start:entry.End], entry.DType)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q decode: %w", name, err)
	}

	t, err := tensor.Wrap(data, entry.Shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	return t, nil
}

func (s *Store) TensorWithShape(name string, wantShape []int64) (*tensor.Tensor, error) {
	t, err := s.Tensor(name)
	if err != nil {
		return nil, err
	}

	if !equalShape(t.Shape(), wantShape) {
		return nil, fmt.Errorf("safetensors: tensor %q shape %v does not match expected %v", name, t.Shape(), wantShape)
	}

	return t, nil
}

func (s *Store) ReadAll() (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(s.names))
	for _, name := range s.names {
		t, err := s.Tensor(name)
		if err != nil {
			return nil, err
		}

		out[name] = t
	}

	return out, nil
}

func (s *Store) Close() {
	s.raw = nil
	s.entries = nil
	s.names = nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", headerLen, len(data))
	}

	headerEnd := 8 + int(headerLen)

	var header map[string]json.RawMessage

	err := json.Unmarshal(data[8:headerEnd], &header)
	if err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return headerEnd, header, nil
}

func validateHeaderEntry(name string, entry storeHeaderEntry) error {
	if _, ok := storeDTypes[strings.ToUpper(entry.DType)]; !ok {
		return fmt.Errorf("safetensors: tensor %q has unsupported dtype %q: %w", name, entry.DType, tensor.ErrUnsupportedDType)
	}

	if entry.Offsets[0] < 0 || entry.Offsets[1] < entry.Offsets[0] {
		return fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", name, entry.Offsets)
	}

	for _, d := range entry.Shape {
		if d < 0 {
			return fmt.Errorf("safetensors: tensor %q has negative shape dimension in %v", name, entry.Shape)
		}
	}

	return nil
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}

		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func decodeTensorData(raw []byte, dtype string) (any, error) {
	le := binary.LittleEndian

	switch dtype {
	case "F16":
		return decode(raw, 2, func(b []byte) float16.Float16 { return float16.Frombits(le.Uint16(b)) }), nil
	case "BF16":
		return decode(raw, 2, func(b []byte) float32 { return math.Float32frombits(uint32(le.Uint16(b)) << 16) }), nil
	case "F32":
		return decode(raw, 4, func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }), nil
	case "F64":
		return decode(raw, 8, func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }), nil
	case "I8":
		return decode(raw, 1, func(b []byte) int8 { return int8(b[0]) }), nil
	case "I16":
		return decode(raw, 2, func(b []byte) int16 { return int16(le.Uint16(b)) }), nil
	case "I32":
		return decode(raw, 4, func(b []byte) int32 { return int32(le.Uint32(b)) }), nil
	case "I64":
		return decode(raw, 8, func(b []byte) int64 { return int64(le.Uint64(b)) }), nil
	case "U8":
		return decode(raw, 1, func(b []byte) uint8 { return b[0] }), nil
	case "U16":
		return decode(raw, 2, le.Uint16), nil
	case "U32":
		return decode(raw, 4, le.Uint32), nil
	case "U64":
		return decode(raw, 8, le.Uint64), nil
	case "BOOL":
		return decode(raw, 1, func(b []byte) bool { return b[0] != 0 }), nil
	default:
		return nil, fmt.Errorf("dtype %q: %w", dtype, tensor.ErrUnsupportedDType)
	}
}

func decode[T tensor.Element](raw []byte, size int, conv func([]byte) T) []T {
	out := make([]T, len(raw)/size)
	for i := range out {
		out[i] = conv(raw[i*size : (i+1)*size])
	}

	return out
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
