package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBench_Table(t *testing.T) {
	x := writeTensorFile(t, t.TempDir(), "x.pb", mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3))

	out, err := execute(t, "bench", "--op", "Softmax", "--input", x, "--runs", "3", "--warmup", "0")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	if !strings.Contains(out, "Softmax-13") {
		t.Errorf("table should carry the resolved operator label:\n%s", out)
	}

	if !strings.Contains(out, "(median)") {
		t.Errorf("table should carry stats:\n%s", out)
	}
}

func TestBench_JSON(t *testing.T) {
	x := writeTensorFile(t, t.TempDir(), "x.pb", mustTensor(t, []float32{1, 2, 3, 4}, 4))

	out, err := execute(t, "bench", "--op", "Relu", "--input", x, "--runs", "2", "--format", "json")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}

	var report struct {
		Runs []struct {
			Elements int64 `json:"elements"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}

	if len(report.Runs) != 2 || report.Runs[0].Elements != 4 {
		t.Errorf("runs = %+v; want 2 runs of 4 elements", report.Runs)
	}
}

func TestBench_ValidatesFlags(t *testing.T) {
	x := writeTensorFile(t, t.TempDir(), "x.pb", mustTensor(t, []float32{1}, 1))

	if _, err := execute(t, "bench", "--op", "Abs", "--input", x, "--runs", "0"); err == nil {
		t.Error("want error for --runs 0")
	}

	if _, err := execute(t, "bench", "--op", "Abs", "--input", x, "--format", "csv"); err == nil {
		t.Error("want error for unknown format")
	}

	if _, err := execute(t, "bench", "--op", "Abs", "--input", x, "--threshold", "1ns"); err == nil {
		t.Error("want threshold error for a 1ns limit")
	}
}
