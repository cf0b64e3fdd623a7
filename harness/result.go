// Package harness drives the external benchmark-reporting tool: it
// emits the configuration record the tool consumes and parses the
// timing statistics it produces.
package harness

import (
	"encoding/json"
	"fmt"
	"io"
)

// Result holds one benchmark's timing statistics as reported by the
// harness. Durations are in seconds, matching the harness's JSON
// export.
type Result struct {
	Name   string    `json:"name"`
	Mean   float64   `json:"mean"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	StdDev float64   `json:"stddev"`
	Times  []float64 `json:"times"`
}

type harnessOutput struct {
	Results []Result `json:"results"`
}

// parseResults decodes the harness's JSON export. Results without a
// name inherit the benchmark name of the run.
func parseResults(name string, r io.Reader) ([]Result, error) {
	var out harnessOutput
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	if len(out.Results) == 0 {
		return nil, fmt.Errorf("harness reported no results")
	}

	for i := range out.Results {
		if out.Results[i].Name == "" {
			out.Results[i].Name = name
		}
	}

	return out.Results, nil
}
