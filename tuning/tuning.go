// Package tuning applies best-effort host adjustments that reduce
// benchmark noise: CPU frequency governor, SMT, turbo boost and the
// loopback MTU. Every step reports an outcome instead of failing the
// run; a host that rejects a tunable still produces valid (if noisier)
// measurements.
package tuning

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
)

// Kind classifies how a tuning step ended.
type Kind int

const (
	// Applied means the tunable was written successfully.
	Applied Kind = iota
	// Skipped means the tunable does not exist on this host.
	Skipped
	// Failed means the host rejected the write, usually for lack of
	// privilege.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Applied:
		return "applied"
	case Skipped:
		return "skipped"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome records the result of a single tuning step.
type Outcome struct {
	Step   string
	Kind   Kind
	Detail string
}

// Report aggregates the outcomes of a tuning pass.
type Report struct {
	Outcomes []Outcome
}

// Failed reports whether any step failed. Failures are informational;
// callers must not abort on them.
func (r *Report) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Kind == Failed {
			return true
		}
	}

	return false
}

// Write renders the report as a table.
func (r *Report) Write(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Outcome", "Detail"})
	table.SetAutoWrapText(false)

	for _, o := range r.Outcomes {
		table.Append([]string{o.Step, o.Kind.String(), o.Detail})
	}

	table.Render()
}

// Tuner runs the host tuning steps.
type Tuner struct {
	// SysfsRoot is the CPU sysfs tree, normally
	// /sys/devices/system/cpu. Overridable for tests.
	SysfsRoot string
	// LoopbackMTU is applied to the lo interface; 0 skips the step.
	LoopbackMTU int
	Logger      *slog.Logger
}

// Apply runs every tuning step and returns the aggregated report.
// Failures are logged as warnings and never abort the pass.
func (t *Tuner) Apply() Report {
	steps := []struct {
		name string
		run  func() Outcome
	}{
		{"cpu governor", t.setGovernor},
		{"smt", t.disableSMT},
		{"turbo boost", t.disableTurbo},
		{"loopback mtu", t.setLoopbackMTU},
	}

	var report Report

	for _, step := range steps {
		outcome := step.run()
		outcome.Step = step.name
		report.Outcomes = append(report.Outcomes, outcome)

		switch outcome.Kind {
		case Applied:
			t.Logger.Info("tuning step applied",
				slog.String("step", outcome.Step),
				slog.String("detail", outcome.Detail),
			)
		case Skipped:
			t.Logger.Info("tuning step skipped",
				slog.String("step", outcome.Step),
				slog.String("detail", outcome.Detail),
			)
		case Failed:
			t.Logger.Warn("tuning step failed, measurements may be noisy",
				slog.String("step", outcome.Step),
				slog.String("detail", outcome.Detail),
			)
		}
	}

	return report
}

// setGovernor switches every cpufreq policy to the performance
// governor.
func (t *Tuner) setGovernor() Outcome {
	paths, err := filepath.Glob(
		filepath.Join(t.SysfsRoot, "cpu*", "cpufreq", "scaling_governor"),
	)
	if err != nil || len(paths) == 0 {
		return Outcome{Kind: Skipped, Detail: "no cpufreq policies exposed"}
	}

	var failed int
	for _, path := range paths {
		if err := writeSysfs(path, "performance"); err != nil {
			failed++
		}
	}

	if failed == len(paths) {
		return Outcome{
			Kind:   Failed,
			Detail: fmt.Sprintf("all %d governor writes rejected", failed),
		}
	}
	if failed > 0 {
		return Outcome{
			Kind:   Failed,
			Detail: fmt.Sprintf("%d of %d governor writes rejected", failed, len(paths)),
		}
	}

	return Outcome{
		Kind:   Applied,
		Detail: fmt.Sprintf("performance governor on %d CPUs", len(paths)),
	}
}

// disableSMT turns off simultaneous multithreading so hyperthread
// siblings cannot perturb the pinned cores.
func (t *Tuner) disableSMT() Outcome {
	path := filepath.Join(t.SysfsRoot, "smt", "control")

	if _, err := os.Stat(path); err != nil {
		return Outcome{Kind: Skipped, Detail: "smt control not exposed"}
	}

	if err := writeSysfs(path, "off"); err != nil {
		return Outcome{Kind: Failed, Detail: err.Error()}
	}

	return Outcome{Kind: Applied, Detail: "smt off"}
}

// disableTurbo pins the clock by disabling turbo boost, trying the
// intel_pstate knob first and the generic cpufreq boost knob second.
func (t *Tuner) disableTurbo() Outcome {
	noTurbo := filepath.Join(t.SysfsRoot, "intel_pstate", "no_turbo")
	if _, err := os.Stat(noTurbo); err == nil {
		if err := writeSysfs(noTurbo, "1"); err != nil {
			return Outcome{Kind: Failed, Detail: err.Error()}
		}

		return Outcome{Kind: Applied, Detail: "intel_pstate no_turbo=1"}
	}

	boost := filepath.Join(t.SysfsRoot, "cpufreq", "boost")
	if _, err := os.Stat(boost); err == nil {
		if err := writeSysfs(boost, "0"); err != nil {
			return Outcome{Kind: Failed, Detail: err.Error()}
		}

		return Outcome{Kind: Applied, Detail: "cpufreq boost=0"}
	}

	return Outcome{Kind: Skipped, Detail: "no turbo control exposed"}
}

func writeSysfs(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
