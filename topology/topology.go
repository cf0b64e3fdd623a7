// Package topology discovers the host CPU layout and picks the logical
// CPUs that the server and client processes are pinned to.
package topology

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is where the kernel exposes CPU topology.
const DefaultSysfsRoot = "/sys/devices/system/cpu"

// Map associates each logical CPU number with the physical core it
// belongs to. Hyperthread siblings share a core id.
type Map map[int]int

// Read builds a Map from the sysfs tree rooted at root. Logical CPUs
// whose core_id file is missing or unreadable are skipped rather than
// reported as errors, since partial topology is still usable.
func Read(root string) (Map, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read cpu dir %s: %w", root, err)
	}

	m := make(Map)

	for _, entry := range entries {
		cpu, ok := cpuNumber(entry.Name())
		if !ok {
			continue
		}

		raw, err := os.ReadFile(
			filepath.Join(root, entry.Name(), "topology", "core_id"),
		)
		if err != nil {
			continue
		}

		core, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}

		m[cpu] = core
	}

	return m, nil
}

// cpuNumber extracts N from a directory entry named "cpuN".
func cpuNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "cpu")
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}

	return n, true
}

// SelectCores picks the logical CPUs for the server and client roles.
// One representative logical CPU is kept per physical core (the
// lowest-numbered one), representatives are sorted descending, and the
// server takes the largest with the client next. With a single
// physical core both roles share it; with no topology at all the fixed
// pair (0, 1) is used. Both degraded cases are warned about, never
// fatal, so SelectCores always returns a usable pair.
func SelectCores(m Map, logger *slog.Logger) (server, client int) {
	byCore := make(map[int]int)

	cpus := make([]int, 0, len(m))
	for cpu := range m {
		cpus = append(cpus, cpu)
	}
	slices.Sort(cpus)

	for _, cpu := range cpus {
		core := m[cpu]
		if _, seen := byCore[core]; !seen {
			byCore[core] = cpu
		}
	}

	reps := make([]int, 0, len(byCore))
	for _, cpu := range byCore {
		reps = append(reps, cpu)
	}
	slices.SortFunc(reps, func(a, b int) int { return b - a })

	switch len(reps) {
	case 0:
		logger.Warn("no CPU topology found, falling back to CPUs 0 and 1")
		return 0, 1
	case 1:
		logger.Warn("only one physical core, server and client will share it",
			slog.Int("cpu", reps[0]),
		)
		return reps[0], reps[0]
	default:
		return reps[0], reps[1]
	}
}
