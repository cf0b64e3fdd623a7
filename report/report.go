// Package report formats benchmark timing results into comparison
// tables and summary statistics.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/olekukonko/tablewriter"

	"github.com/quicbench/perfcompare/harness"
)

// Stats summarizes a sample of wall-clock durations in seconds.
type Stats struct {
	Mean       float64
	Std        float64
	CV         float64
	Range      float64
	RangeCoeff float64
}

// Compute derives Stats from the given samples. CV and RangeCoeff are
// NaN when the mean is zero.
func Compute(values []float64) Stats {
	n := float64(len(values))
	if n == 0 {
		return Stats{CV: math.NaN(), RangeCoeff: math.NaN()}
	}

	var sum float64
	minV := math.Inf(1)
	maxV := math.Inf(-1)

	for _, v := range values {
		sum += v
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	mean := sum / n

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= n

	s := Stats{
		Mean:  mean,
		Std:   math.Sqrt(variance),
		Range: maxV - minV,
	}

	if mean != 0 {
		s.CV = s.Std / mean
		s.RangeCoeff = s.Range / mean
	} else {
		s.CV = math.NaN()
		s.RangeCoeff = math.NaN()
	}

	return s
}

// Generate writes a comparison table for the given results.
func Generate(w io.Writer, results []harness.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	fastest := findFastest(results)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Benchmark", "Mean", "Min", "Max", "Std", "CV", "Slowdown",
	})
	table.SetAutoWrapText(false)

	for _, r := range results {
		stats := Compute(r.Times)
		if len(r.Times) == 0 {
			// Some harness versions export aggregates only.
			stats = Stats{Mean: r.Mean, Std: r.StdDev}
			if r.Mean != 0 {
				stats.CV = r.StdDev / r.Mean
			}
		}

		slowdown := 1.0
		if fastest > 0 && r.Mean > 0 {
			slowdown = r.Mean / fastest
		}

		table.Append([]string{
			r.Name,
			FormatDuration(r.Mean),
			FormatDuration(r.Min),
			FormatDuration(r.Max),
			FormatDuration(stats.Std),
			formatPercent(stats.CV),
			fmt.Sprintf("%.2fx", slowdown),
		})
	}

	table.Render()

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

func findFastest(results []harness.Result) float64 {
	fastest := math.Inf(1)
	for _, r := range results {
		if r.Mean > 0 && r.Mean < fastest {
			fastest = r.Mean
		}
	}

	if math.IsInf(fastest, 1) {
		return 0
	}

	return fastest
}

// FormatDuration renders a duration in seconds with the unit scaled
// to its magnitude: microseconds below one millisecond, milliseconds
// below one second, seconds above.
func FormatDuration(seconds float64) string {
	ms := seconds * 1000
	if ms < 1 {
		return fmt.Sprintf("%.2f µs", ms*1000)
	}
	if ms < 1000 {
		return fmt.Sprintf("%.2f ms", ms)
	}

	return fmt.Sprintf("%.3f s", ms/1000)
}

func formatPercent(v float64) string {
	if math.IsNaN(v) {
		return "N/A"
	}

	return fmt.Sprintf("%.1f%%", v*100)
}
