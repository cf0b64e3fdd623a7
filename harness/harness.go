package harness

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// RunConfig holds parameters for a single harness execution.
type RunConfig struct {
	// ConfigPath is the benchmark configuration record written by
	// WriteConfig.
	ConfigPath string
	// Env is appended to the inherited environment so the client
	// command the harness spawns sees its runtime-linker variables.
	Env []string
}

// Runner launches the external benchmark harness and collects its
// timing statistics. The harness owns warmup, round repetition and
// the client's exit status; no timeout is imposed here.
type Runner struct {
	Name   string
	Binary string
	Logger *slog.Logger
}

// NewRunner creates a Runner for the named benchmark.
func NewRunner(name, binary string, logger *slog.Logger) *Runner {
	return &Runner{
		Name:   name,
		Binary: binary,
		Logger: logger.With(slog.String("benchmark", name)),
	}
}

// Run executes the harness synchronously and returns parsed results.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) ([]Result, error) {
	cmd := exec.CommandContext(ctx, r.Binary, "--config", cfg.ConfigPath)

	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Info("starting harness",
		slog.String("binary", r.Binary),
		slog.String("config", cfg.ConfigPath),
	)

	wallStart := time.Now()

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf(
			"harness %s failed: %w\nstderr: %s",
			r.Name, err, stderr.String(),
		)
	}

	wallElapsed := time.Since(wallStart)

	r.Logger.Info("harness finished",
		slog.Duration("wall_time", wallElapsed),
	)

	results, err := parseResults(r.Name, &stdout)
	if err != nil {
		return nil, fmt.Errorf(
			"parse %s output: %w\nstdout: %s",
			r.Name, err, stdout.String(),
		)
	}

	return results, nil
}
