package harness

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the benchmark configuration record the harness consumes.
type Config struct {
	Name string
	// Command is the fully-formed client invocation, rendered as a
	// single line.
	Command string
	// Warmup is how long the harness exercises the command before
	// measuring.
	Warmup time.Duration
	// MinRounds is the minimum number of measured repetitions.
	MinRounds int
}

// wireConfig is the on-disk shape of one benchmark entry.
type wireConfig struct {
	Name       string `yaml:"name"`
	Command    string `yaml:"command"`
	WarmupTime string `yaml:"warmup_time"`
	MinRounds  int    `yaml:"min_rounds"`
}

type wireFile struct {
	Benchmarks []wireConfig `yaml:"benchmarks"`
}

// WriteConfig serializes the record to path as YAML. The file is
// consumed immediately by the harness; no further lifecycle
// management happens here.
func WriteConfig(path string, cfg Config) error {
	if cfg.Command == "" {
		return fmt.Errorf("benchmark %q has no command", cfg.Name)
	}

	raw, err := yaml.Marshal(wireFile{
		Benchmarks: []wireConfig{{
			Name:       cfg.Name,
			Command:    cfg.Command,
			WarmupTime: cfg.Warmup.String(),
			MinRounds:  cfg.MinRounds,
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal benchmark config: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write benchmark config: %w", err)
	}

	return nil
}
