package tensor

import (
	"sync"
	"sync/atomic"
)

// workers controls goroutine parallelism for element-wise and reduction
// kernels. Values <= 1 disable parallel execution.
var workers atomic.Int32

// minParallelWork is the smallest element count worth splitting.
const minParallelWork = 1 << 14

// DefaultMaxElements is the element limit applied until SetMaxElements is
// called.
const DefaultMaxElements = 1 << 27

// maxElements bounds the element count of every tensor shape materialized
// by the runtime.
var maxElements atomic.Int64

func init() {
	workers.Store(1)
	maxElements.Store(DefaultMaxElements)
}

// SetMaxElements sets the largest element count a tensor may have. n <= 0
// restores DefaultMaxElements.
func SetMaxElements(n int64) {
	if n <= 0 {
		n = DefaultMaxElements
	}

	maxElements.Store(n)
}

// MaxElements returns the configured element limit.
func MaxElements() int64 { return maxElements.Load() }

// SetWorkers sets the maximum number of goroutines used by kernels.
// n <= 1 disables kernel parallelism.
func SetWorkers(n int) {
	const maxInt32 = int(^uint32(0) >> 1)

	if n < 1 {
		n = 1
	}

	if n > maxInt32 {
		n = maxInt32
	}

	workers.Store(int32(n))
}

// Workers returns the configured kernel parallelism.
func Workers() int {
	n := int(workers.Load())
	if n < 1 {
		return 1
	}

	return n
}

// ParallelFor splits [0, n) into contiguous chunks and runs fn on each. Each
// index belongs to exactly one chunk, so kernels that write out[i] only from
// the chunk owning i stay deterministic. cost is the approximate work per
// index used to decide whether splitting is worthwhile.
func ParallelFor(n, cost int, fn func(lo, hi int)) {
	maxWorkers := Workers()
	if cost < 1 {
		cost = 1
	}

	if n*cost < minParallelWork {
		maxWorkers = 1
	}

	parallelFor(n, maxWorkers, fn)
}

func parallelFor(n, maxWorkers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}

	if maxWorkers <= 1 || n == 1 {
		fn(0, n)
		return
	}

	if maxWorkers > n {
		maxWorkers = n
	}

	chunk := (n + maxWorkers - 1) / maxWorkers
	var wg sync.WaitGroup

	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}

	wg.Wait()
}
