// Package session manages the server side of one benchmark run: it
// clears the target port, launches the server, verifies it is alive
// and listening, and guarantees teardown on every exit path.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/quicbench/perfcompare/commands"
)

// DefaultSettle is how long the server gets to bind its port before
// the liveness checks run. Tunable, not load-bearing; three seconds
// matches what the slowest implementation needs on CI hardware.
const DefaultSettle = 3 * time.Second

// Config describes one server lifecycle.
type Config struct {
	Server commands.Command
	// Port is the UDP port the server must end up listening on.
	Port int
	// Settle is the grace period between spawn and the liveness
	// checks. Zero means DefaultSettle.
	Settle time.Duration
	// ProcRoot is the procfs mount, normally /proc. Overridable for
	// tests.
	ProcRoot string
	Logger   *slog.Logger
}

// Controller owns a single server process. Teardown is safe to call
// from any state, any number of times.
type Controller struct {
	cfg Config

	mu      sync.Mutex
	proc    *os.Process
	waitCh  chan error
	stopped bool
}

// New creates a Controller. The server is not started yet.
func New(cfg Config) *Controller {
	if cfg.Settle == 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.ProcRoot == "" {
		cfg.ProcRoot = "/proc"
	}

	return &Controller{cfg: cfg}
}

// Start clears the port, spawns the server and verifies it: after the
// settle period the process must still be running and the UDP port
// must be bound. Any verification failure kills the server and is
// fatal — a benchmark against a dead server is meaningless, so there
// is no retry.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.clearPort(); err != nil {
		return fmt.Errorf("clear port %d: %w", c.cfg.Port, err)
	}

	cmd := c.cfg.Server.Exec()
	cmd.Stderr = os.Stderr
	if len(c.cfg.Server.Env) > 0 {
		cmd.Env = append(os.Environ(), c.cfg.Server.Env...)
	}

	c.cfg.Logger.Info("starting server",
		slog.String("command", c.cfg.Server.String()),
		slog.Int("port", c.cfg.Port),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn server: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	c.mu.Lock()
	c.proc = cmd.Process
	c.waitCh = waitCh
	c.stopped = false
	c.mu.Unlock()

	select {
	case err := <-waitCh:
		c.markStopped()

		return fmt.Errorf("server exited during settle period: %v", err)
	case <-ctx.Done():
		c.Teardown()

		return ctx.Err()
	case <-time.After(c.cfg.Settle):
	}

	bound, err := portBound(c.cfg.ProcRoot, c.cfg.Port)
	if err != nil {
		c.Teardown()

		return fmt.Errorf("check port %d: %w", c.cfg.Port, err)
	}
	if !bound {
		c.Teardown()

		return fmt.Errorf(
			"server not listening on UDP port %d after %s",
			c.cfg.Port, c.cfg.Settle,
		)
	}

	c.cfg.Logger.Info("server verified",
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("port", c.cfg.Port),
	)

	return nil
}

// Teardown kills the server and reaps it. Calling it on an already
// torn-down or never-started controller is a no-op; "process already
// exited" is swallowed so interrupt handlers can always call it.
func (c *Controller) Teardown() {
	c.mu.Lock()
	proc, waitCh, stopped := c.proc, c.waitCh, c.stopped
	c.stopped = true
	c.mu.Unlock()

	if proc == nil || stopped {
		return
	}

	_ = proc.Kill()

	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		c.cfg.Logger.Warn("server did not exit after kill",
			slog.Int("pid", proc.Pid),
		)
	}

	c.cfg.Logger.Info("server stopped", slog.Int("pid", proc.Pid))
}

func (c *Controller) markStopped() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// clearPort finds any process still bound to the target port from a
// previous run, kills it, and waits for the kernel to release the
// port. Stale servers are the usual cause of address-in-use failures
// across repeated runs.
func (c *Controller) clearPort() error {
	pids, err := portOwners(c.cfg.ProcRoot, c.cfg.Port)
	if err != nil {
		return err
	}

	for _, pid := range pids {
		c.cfg.Logger.Warn("killing stale process on benchmark port",
			slog.Int("pid", pid),
			slog.Int("port", c.cfg.Port),
		)
		// Already-exited processes are fine.
		_ = unix.Kill(pid, unix.SIGKILL)
	}

	if len(pids) == 0 {
		return nil
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		bound, err := portBound(c.cfg.ProcRoot, c.cfg.Port)
		if err != nil {
			return err
		}
		if !bound {
			return nil
		}

		time.Sleep(50 * time.Millisecond)
	}

	return fmt.Errorf("port %d still bound after killing owners", c.cfg.Port)
}
