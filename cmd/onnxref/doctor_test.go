package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/config"
)

func TestRunDoctor_RegistryOnly(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if err := runDoctor(config.DefaultConfig(), true, true, &stdout, &stderr); err != nil {
		t.Fatalf("runDoctor: %v\nstderr: %s", err, stderr.String())
	}

	if !strings.Contains(stdout.String(), "doctor checks passed") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRunDoctor_MissingTestData(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Conformance.TestDataDir = filepath.Join(t.TempDir(), "missing")

	var stdout, stderr bytes.Buffer

	if err := runDoctor(cfg, true, false, &stdout, &stderr); err == nil {
		t.Fatal("want error for a missing test data directory")
	}

	if !strings.Contains(stderr.String(), "FAIL: test data") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunDoctor_WithTestData(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Conformance.TestDataDir = writeCases(t, false)

	var stdout, stderr bytes.Buffer

	if err := runDoctor(cfg, true, false, &stdout, &stderr); err != nil {
		t.Fatalf("runDoctor: %v\nstderr: %s", err, stderr.String())
	}

	if !strings.Contains(stdout.String(), "2 cases") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestOrtVersion_FromConfiguredLibrary(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libonnxruntime.so.1.23.2")
	if err := os.WriteFile(lib, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ortVersion(config.RuntimeConfig{ORTLibraryPath: lib})()
	if err != nil {
		t.Fatalf("ortVersion: %v", err)
	}

	if got != "1.23.2" {
		t.Errorf("version = %q; want 1.23.2", got)
	}
}

func TestOrtVersion_MissingLibrary(t *testing.T) {
	_, err := ortVersion(config.RuntimeConfig{ORTLibraryPath: "/nonexistent/libonnxruntime.so"})()
	if err == nil {
		t.Fatal("want error for a missing library")
	}
}
