package tensor

import (
	"errors"
	"testing"
)

func equalI64(a, b []int64) bool {
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

func mustNew[T Element](t *testing.T, data []T, shape []int64) *Tensor {
	t.Helper()

	x, err := New(data, shape)
	if err != nil {
		t.Fatalf("New(%v, %v): %v", data, shape, err)
	}

	return x
}

func mustValues[T Element](t *testing.T, x *Tensor) []T {
	t.Helper()

	v, err := Values[T](x)
	if err != nil {
		t.Fatalf("Values: %v", err)
	}

	return v
}

func assertIs(t *testing.T, err, target error) {
	t.Helper()

	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}
