package safetensors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/go-onnxref/internal/runtime/tensor"
)

// PositionalKeys keeps tensors named prefix followed by a decimal index and
// maps each to its index. Other names are dropped.
func PositionalKeys(prefix string) KeyMapper {
	return func(name string) (string, bool) {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok {
			return "", false
		}

		i, err := strconv.Atoi(rest)
		if err != nil || i < 0 {
			return "", false
		}

		return strconv.Itoa(i), true
	}
}

// ReadPositional loads the tensors named prefix0, prefix1, ... from a
// safetensors file in index order. Indices must be contiguous from zero.
func ReadPositional(path, prefix string) ([]*tensor.Tensor, error) {
	store, err := OpenStore(path, StoreOptions{KeyMapper: PositionalKeys(prefix)})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	out := make([]*tensor.Tensor, len(store.Names()))
	for i := range out {
		key := strconv.Itoa(i)
		if !store.Has(key) {
			return nil, fmt.Errorf("safetensors: %s: missing tensor %s%d", path, prefix, i)
		}

		t, err := store.Tensor(key)
		if err != nil {
			return nil, err
		}

		out[i] = t
	}

	return out, nil
}

// WritePositional stores ts under prefix0, prefix1, ... in path.
func WritePositional(path, prefix string, ts []*tensor.Tensor) error {
	named := make([]Named, len(ts))
	for i, t := range ts {
		named[i] = Named{Name: prefix + strconv.Itoa(i), Tensor: t}
	}

	return WriteFile(path, named)
}
