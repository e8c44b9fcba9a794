// Package testutil provides shared skip helpers and fixture builders for
// tests.
//
// Each Require helper calls t.Skip with a clear human-readable reason when
// the named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestParity(t *testing.T) {
//	    lib := testutil.RequireONNXRuntime(t)
//	    root := testutil.RequireTestData(t)
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located and otherwise returns its path. It checks (in order): the
// ONNXREF_ORT_LIB env var, then ORT_LIBRARY_PATH, then common system
// library paths.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"ONNXREF_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)

			return ""
		}
	}

	candidates := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set ONNXREF_ORT_LIB or ORT_LIBRARY_PATH")

	return ""
}

// RequireTestData skips the test unless ONNXREF_TESTDATA names a directory
// of ONNX backend node test cases, and returns that directory.
func RequireTestData(tb testing.TB) string {
	tb.Helper()

	dir := os.Getenv("ONNXREF_TESTDATA")
	if dir == "" {
		tb.Skip("ONNX node test data not configured; set ONNXREF_TESTDATA to onnx/backend/test/data/node")
		return ""
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		tb.Skipf("ONNX node test data not found at ONNXREF_TESTDATA=%q", dir)
		return ""
	}

	return dir
}
