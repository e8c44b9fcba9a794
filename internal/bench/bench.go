// Package bench provides benchmarking primitives for the onnxref bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and allocation figures for one evaluation.
type RunResult struct {
	Index    int
	Cold     bool // true for the first measured run when there was no warmup
	Duration time.Duration
	// Elements is the number of output elements the evaluation produced.
	Elements int64
	// AllocBytes is the heap allocated during the run.
	AllocBytes uint64
}

// Throughput returns output elements per second, or 0 for a zero duration.
func (r RunResult) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}

	return float64(r.Elements) / r.Duration.Seconds()
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	Median time.Duration
}

// ComputeStats calculates min, max, mean and median over a slice of
// durations. An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	return Stats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   sum / time.Duration(len(sorted)),
		Median: median,
	}
}

// Durations extracts the run durations.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// Config controls a benchmark.
type Config struct {
	// Label tags CPU profile samples as op=Label.
	Label  string
	Runs   int
	Warmup int
	// CPUProfile, when set, receives a pprof CPU profile of the measured runs.
	CPUProfile string
}

// EvalFunc performs one evaluation and reports how many output elements it
// produced.
type EvalFunc func(ctx context.Context) (elements int64, err error)

// Run executes cfg.Warmup unmeasured and cfg.Runs measured calls of fn.
func Run(ctx context.Context, cfg Config, fn EvalFunc) ([]RunResult, error) {
	if cfg.Runs < 1 {
		return nil, errors.New("bench: runs must be >= 1")
	}

	for i := range cfg.Warmup {
		if _, err := fn(ctx); err != nil {
			return nil, fmt.Errorf("bench: warmup run %d: %w", i+1, err)
		}
	}

	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			return nil, fmt.Errorf("bench: create cpu profile: %w", err)
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			return nil, fmt.Errorf("bench: start cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	runs := make([]RunResult, 0, cfg.Runs)

	for i := range cfg.Runs {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		var (
			before, after runtime.MemStats
			elements      int64
			err           error
		)

		runtime.ReadMemStats(&before)
		start := time.Now()

		pprof.Do(ctx, pprof.Labels("op", cfg.Label), func(ctx context.Context) {
			elements, err = fn(ctx)
		})

		d := time.Since(start)

		runtime.ReadMemStats(&after)

		if err != nil {
			return runs, fmt.Errorf("bench: run %d: %w", i+1, err)
		}

		runs = append(runs, RunResult{
			Index:      i,
			Cold:       i == 0 && cfg.Warmup == 0,
			Duration:   d,
			Elements:   elements,
			AllocBytes: after.TotalAlloc - before.TotalAlloc,
		})
	}

	return runs, nil
}

// ---------------------------------------------------------------------------
// Threshold gate
// ---------------------------------------------------------------------------

// CheckThreshold returns an error if mean > limit. A zero limit disables
// the gate.
func CheckThreshold(mean, limit time.Duration) error {
	if limit <= 0 {
		return nil
	}

	if mean > limit {
		return fmt.Errorf("mean %v exceeds threshold %v", mean, limit)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(label string, runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	if label != "" {
		fmt.Fprintf(sb, "%s\n", label)
	}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %14s  %10s\n", "Run", "Cold", "MS", "Elements", "Elem/s", "Alloc")
	fmt.Fprintln(sb, strings.Repeat("-", 66))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}

		fmt.Fprintf(sb, "%-5d  %-5s  %10.3f  %12s  %14s  %10s\n",
			r.Index+1,
			cold,
			ms(r.Duration),
			humanize.Comma(r.Elements),
			humanize.SIWithDigits(r.Throughput(), 2, ""),
			humanize.Bytes(r.AllocBytes),
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 66))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (min)\n", "", "", ms(stats.Min))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (median)\n", "", "", ms(stats.Median))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (mean)\n", "", "", ms(stats.Mean))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.3f  (max)\n", "", "", ms(stats.Max))

	fmt.Fprint(w, sb.String())
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Label string    `json:"label,omitempty"`
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Elements   int64   `json:"elements"`
	Throughput float64 `json:"elements_per_sec"`
	AllocBytes uint64  `json:"alloc_bytes"`
}

type jsonStats struct {
	MinMS    float64 `json:"min_ms"`
	MedianMS float64 `json:"median_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(label string, runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Label: label,
		Runs:  make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:    ms(stats.Min),
			MedianMS: ms(stats.Median),
			MeanMS:   ms(stats.Mean),
			MaxMS:    ms(stats.Max),
		},
	}

	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: ms(r.Duration),
			Elements:   r.Elements,
			Throughput: r.Throughput(),
			AllocBytes: r.AllocBytes,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(jr)
}
