package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/cwbudde/go-onnxref/internal/config"
)

// RuntimeInfo describes the ONNX Runtime shared library used for parity
// runs.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
	APIVersion  uint32
	Initialized bool
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

var (
	bootstrapMu   sync.Mutex
	bootstrapInfo RuntimeInfo
	errBootstrap  error
	bootstrapped  bool
)

// Bootstrap detects the runtime once per process and remembers the result.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	if !bootstrapped {
		bootstrapped = true

		info, err := DetectRuntime(cfg)
		if err != nil {
			errBootstrap = err
		} else {
			bootstrapInfo = info
			bootstrapInfo.Initialized = true
		}
	}

	if errBootstrap != nil {
		return RuntimeInfo{}, errBootstrap
	}

	return bootstrapInfo, nil
}

// Shutdown forgets the bootstrapped runtime. Open runners own their native
// handles and must be closed separately.
func Shutdown() error {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	bootstrapInfo = RuntimeInfo{}
	errBootstrap = nil
	bootstrapped = false

	return nil
}

var libraryCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"C:/onnxruntime/lib/onnxruntime.dll",
}

// DetectRuntime resolves the library path from cfg, then ONNXREF_ORT_LIB,
// then ORT_LIBRARY_PATH, then well-known install locations.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	apiVersion := cfg.ORTAPIVersion
	if apiVersion == 0 {
		apiVersion = defaultAPIVersion
	}

	path := cfg.ORTLibraryPath
	if path == "" {
		path = os.Getenv("ONNXREF_ORT_LIB")
	}

	if path == "" {
		path = os.Getenv("ORT_LIBRARY_PATH")
	}

	if path == "" {
		for _, c := range libraryCandidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown", APIVersion: apiVersion}, errors.New("unable to detect ONNX Runtime library path")
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown", APIVersion: apiVersion}, fmt.Errorf("onnx runtime library path check failed: %w", err)
	}

	version := cfg.ORTVersion
	if version == "" {
		version = os.Getenv("ORT_VERSION")
	}

	if version == "" {
		version = inferVersionFromPath(path)
	}

	if version == "" {
		version = "unknown"
	}

	return RuntimeInfo{LibraryPath: path, Version: version, APIVersion: apiVersion}, nil
}

func inferVersionFromPath(path string) string {
	name := filepath.Base(path)
	if m := versionPattern.FindStringSubmatch(name); len(m) == 2 {
		return m[1]
	}

	return ""
}
