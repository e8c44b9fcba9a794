// Package doctor provides environment preflight checks for onnxref.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/cwbudde/go-onnxref/internal/engine"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ORTVersion locates the ONNX Runtime library and returns its version,
	// "unknown" when the library is present but unversioned.
	ORTVersion VersionFunc
	// ORTAPIVersion is the C API version the parity runner requests.
	ORTAPIVersion uint32
	// SkipORT skips the ONNX Runtime check.
	SkipORT bool
	// TestDataDir is the ONNX backend node test directory; empty skips the check.
	TestDataDir string
	// Operators is the registry listing to verify.
	Operators []engine.OperatorInfo
	// RequiredOperators must each appear in Operators.
	RequiredOperators []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- operator registry ------------------------------------------------
	known := make(map[string]bool, len(cfg.Operators))
	versions := 0

	for _, op := range cfg.Operators {
		known[op.Name] = true
		versions += len(op.Versions)
	}

	if len(cfg.Operators) == 0 {
		res.fail("operator registry: empty")
		fmt.Fprintf(w, "%s operator registry: empty\n", FailMark)
	} else {
		fmt.Fprintf(w, "%s operator registry: %s operators, %s versions\n",
			PassMark, humanize.Comma(int64(len(cfg.Operators))), humanize.Comma(int64(versions)))
	}

	var missing []string

	for _, name := range cfg.RequiredOperators {
		if !known[name] {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		res.fail(fmt.Sprintf("operator registry: missing %s", strings.Join(missing, ", ")))
		fmt.Fprintf(w, "%s required operators: missing %s\n", FailMark, strings.Join(missing, ", "))
	} else if len(cfg.RequiredOperators) > 0 {
		fmt.Fprintf(w, "%s required operators: %d present\n", PassMark, len(cfg.RequiredOperators))
	}

	// ---- ONNX Runtime -----------------------------------------------------
	if cfg.SkipORT {
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
	} else {
		ver, err := cfg.ORTVersion()

		switch {
		case err != nil:
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		case ver == "unknown":
			fmt.Fprintf(w, "%s onnx runtime: found, version unknown\n", PassMark)
		default:
			if verErr := checkORTVersion(ver, cfg.ORTAPIVersion); verErr != nil {
				res.fail(fmt.Sprintf("onnx runtime: %v", verErr))
				fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, ver, verErr)
			} else {
				fmt.Fprintf(w, "%s onnx runtime: %s\n", PassMark, ver)
			}
		}
	}

	// ---- node test data ---------------------------------------------------
	if cfg.TestDataDir != "" {
		n, err := countCases(cfg.TestDataDir)

		switch {
		case err != nil:
			res.fail(fmt.Sprintf("test data %q: %v", cfg.TestDataDir, err))
			fmt.Fprintf(w, "%s test data %s: not found\n", FailMark, cfg.TestDataDir)
		case n == 0:
			res.fail(fmt.Sprintf("test data %q: no cases with model.onnx", cfg.TestDataDir))
			fmt.Fprintf(w, "%s test data %s: no cases\n", FailMark, cfg.TestDataDir)
		default:
			fmt.Fprintf(w, "%s test data: %s cases in %s\n", PassMark, humanize.Comma(int64(n)), cfg.TestDataDir)
		}
	}

	return res
}

func countCases(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	n := 0

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if _, err := os.Stat(filepath.Join(dir, e.Name(), "model.onnx")); err == nil {
			n++
		}
	}

	return n, nil
}

// checkORTVersion returns an error unless ver is 1.x with x >= apiVersion.
// ONNX Runtime 1.N ships C API version N.
func checkORTVersion(ver string, apiVersion uint32) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if major != 1 {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %d", major)
	}

	if apiVersion > 0 && minor < int(apiVersion) {
		return fmt.Errorf("API version %d requires ONNX Runtime >=1.%d, got 1.%d", apiVersion, apiVersion, minor)
	}

	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}

	return major, minor, nil
}
