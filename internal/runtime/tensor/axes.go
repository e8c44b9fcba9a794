package tensor

import (
	"fmt"
	"slices"
)

// NormalizeAxis maps axis from [-rank, rank-1] to [0, rank-1].
func NormalizeAxis(axis int64, rank int) (int, error) {
	a := axis
	if a < 0 {
		a += int64(rank)
	}

	if a < 0 || a >= int64(rank) {
		return 0, fmt.Errorf("tensor: axis %d out of range for rank %d: %w", axis, rank, ErrAxisOutOfRange)
	}

	return int(a), nil
}

// NormalizeAxes normalizes every axis and returns them sorted. An axis that
// appears twice after normalization is an error.
func NormalizeAxes(axes []int64, rank int) ([]int, error) {
	out := make([]int, 0, len(axes))

	seen := make([]bool, rank)
	for _, axis := range axes {
		a, err := NormalizeAxis(axis, rank)
		if err != nil {
			return nil, err
		}

		if seen[a] {
			return nil, fmt.Errorf("tensor: axis %d repeated in %v: %w", axis, axes, ErrDuplicateAxis)
		}

		seen[a] = true
		out = append(out, a)
	}

	slices.Sort(out)

	return out, nil
}

// AllAxes returns 0..rank-1.
func AllAxes(rank int) []int {
	out := make([]int, rank)
	for i := range out {
		out[i] = i
	}

	return out
}
