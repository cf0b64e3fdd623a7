package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/quicbench/perfcompare/harness"
)

func TestCompute(t *testing.T) {
	stats := Compute([]float64{0.4, 0.5, 0.6})

	if math.Abs(stats.Mean-0.5) > 1e-9 {
		t.Errorf("mean = %v, want 0.5", stats.Mean)
	}

	// Population std of {0.4, 0.5, 0.6} is sqrt(2/300).
	wantStd := math.Sqrt(2.0 / 300.0)
	if math.Abs(stats.Std-wantStd) > 1e-9 {
		t.Errorf("std = %v, want %v", stats.Std, wantStd)
	}

	if math.Abs(stats.CV-wantStd/0.5) > 1e-9 {
		t.Errorf("cv = %v, want %v", stats.CV, wantStd/0.5)
	}
	if math.Abs(stats.Range-0.2) > 1e-9 {
		t.Errorf("range = %v, want 0.2", stats.Range)
	}
	if math.Abs(stats.RangeCoeff-0.4) > 1e-9 {
		t.Errorf("range coeff = %v, want 0.4", stats.RangeCoeff)
	}
}

func TestComputeEmpty(t *testing.T) {
	stats := Compute(nil)
	if !math.IsNaN(stats.CV) || !math.IsNaN(stats.RangeCoeff) {
		t.Errorf("empty sample stats = %+v, want NaN ratios", stats)
	}
}

func TestComputeZeroMean(t *testing.T) {
	stats := Compute([]float64{0, 0})
	if !math.IsNaN(stats.CV) {
		t.Errorf("cv = %v, want NaN for zero mean", stats.CV)
	}
}

func TestGenerate(t *testing.T) {
	results := []harness.Result{
		{
			Name:   "quiche-quiche",
			Mean:   0.4,
			Min:    0.38,
			Max:    0.45,
			StdDev: 0.01,
			Times:  []float64{0.38, 0.4, 0.42},
		},
		{
			Name:   "google-neqo",
			Mean:   0.8,
			Min:    0.75,
			Max:    0.9,
			StdDev: 0.02,
			Times:  []float64{0.75, 0.8, 0.85},
		},
	}

	var buf bytes.Buffer
	if err := Generate(&buf, results); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "quiche-quiche") {
		t.Error("expected quiche-quiche in output")
	}
	if !strings.Contains(output, "google-neqo") {
		t.Error("expected google-neqo in output")
	}
	if !strings.Contains(output, "2.00x") {
		t.Error("expected 2.00x slowdown for the slower pairing")
	}
	if !strings.Contains(output, "1.00x") {
		t.Error("expected 1.00x for the fastest pairing")
	}
}

func TestGenerateAggregatesOnly(t *testing.T) {
	results := []harness.Result{
		{Name: "quiche-quiche", Mean: 0.4, Min: 0.39, Max: 0.41, StdDev: 0.004},
	}

	var buf bytes.Buffer
	if err := Generate(&buf, results); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.Contains(buf.String(), "1.0%") {
		t.Errorf("expected cv from aggregates, got:\n%s", buf.String())
	}
}

func TestGenerateEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Generate(&buf, nil); err == nil {
		t.Error("expected error for empty results")
	}
}

func TestGenerateJSON(t *testing.T) {
	results := []harness.Result{
		{Name: "quiche-quiche", Mean: 0.4, Times: []float64{0.4}},
	}

	var buf bytes.Buffer
	if err := GenerateJSON(&buf, results); err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}

	var parsed []harness.Result
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if len(parsed) != 1 || parsed[0].Name != "quiche-quiche" {
		t.Errorf("round-trip = %+v", parsed)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0.0000005, "0.50 µs"},
		{0.000999, "999.00 µs"},
		{0.001, "1.00 ms"},
		{0.412, "412.00 ms"},
		{0.999, "999.00 ms"},
		{1.0, "1.000 s"},
		{12.3456, "12.346 s"},
	}

	for _, tt := range tests {
		got := FormatDuration(tt.input)
		if got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
