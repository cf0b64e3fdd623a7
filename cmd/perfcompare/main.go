// Package main provides the CLI entry point for perfcompare, a tool
// that benchmarks QUIC implementations against each other over
// loopback and reports wall-clock transfer statistics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/quicbench/perfcompare/commands"
	"github.com/quicbench/perfcompare/harness"
	"github.com/quicbench/perfcompare/report"
	"github.com/quicbench/perfcompare/session"
	"github.com/quicbench/perfcompare/staging"
	"github.com/quicbench/perfcompare/topology"
	"github.com/quicbench/perfcompare/tuning"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "perfcompare:", err)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "perfcompare",
		Short: "Cross-implementation QUIC transfer benchmarks",
		Long: `Perfcompare runs one pre-built QUIC server against one pre-built QUIC
client on pinned CPU cores and measures the wall-clock transfer time under an
external benchmark harness.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newTuneCmd(logger))

	return root
}

type runConfig struct {
	client       string
	server       string
	cc           string
	pacing       bool
	host         string
	port         int
	transferSize int64
	settle       time.Duration
	artifactsDir string
	workDir      string
	certDir      string
	harnessBin   string
	warmup       time.Duration
	minRounds    int
	loMTU        int
	skipStage    bool
	skipTune     bool
	outputJSON   bool
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var cfg runConfig

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one client/server benchmark session",
		Long: `Stage the pre-built binaries, tune the host, start the server pinned to
one physical core, then run the client pinned to another under the benchmark
harness and report timing statistics.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(cmd.Context(), logger, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.client, "client", "",
		"Client implementation (quiche, google, neqo, s2n, msquic)")
	flags.StringVar(&cfg.server, "server", "",
		"Server implementation (quiche, google, neqo, s2n, msquic)")
	flags.StringVar(&cfg.cc, "cc", "cubic",
		"Congestion-control algorithm: cubic or reno")
	flags.BoolVar(&cfg.pacing, "pacing", true,
		"Enable packet pacing")
	flags.StringVar(&cfg.host, "host", "127.0.0.1",
		"Address the server listens on")
	flags.IntVar(&cfg.port, "port", 4433,
		"UDP port the server listens on")
	flags.Int64Var(&cfg.transferSize, "transfer-size", 33554432,
		"Transfer size in bytes")
	flags.DurationVar(&cfg.settle, "settle", session.DefaultSettle,
		"Grace period between server start and the liveness check")
	flags.StringVar(&cfg.artifactsDir, "artifacts-dir", "artifacts",
		"Directory with pre-built binaries, one subdirectory per implementation")
	flags.StringVar(&cfg.workDir, "work-dir", "",
		"Working directory for staged binaries and the transfer file")
	flags.StringVar(&cfg.certDir, "cert-dir", "test-data",
		"Directory with cert.crt and cert.key")
	flags.StringVar(&cfg.harnessBin, "harness-bin", "bench-harness",
		"External benchmark harness binary")
	flags.DurationVar(&cfg.warmup, "warmup", time.Second,
		"Harness warmup duration")
	flags.IntVar(&cfg.minRounds, "min-rounds", 150,
		"Minimum number of measured transfer rounds")
	flags.IntVar(&cfg.loMTU, "lo-mtu", 1500,
		"Loopback MTU to apply during tuning (0 = leave unchanged)")
	flags.BoolVar(&cfg.skipStage, "skip-stage", false,
		"Skip artifact staging")
	flags.BoolVar(&cfg.skipTune, "skip-tune", false,
		"Skip host tuning")
	flags.BoolVar(&cfg.outputJSON, "json", false,
		"Output results as JSON instead of a table")

	return cmd
}

func newTuneCmd(logger *slog.Logger) *cobra.Command {
	var loMTU int

	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Apply the host tuning steps and print the outcome",
		RunE: func(_ *cobra.Command, _ []string) error {
			tuner := &tuning.Tuner{
				SysfsRoot:   topology.DefaultSysfsRoot,
				LoopbackMTU: loMTU,
				Logger:      logger,
			}

			rep := tuner.Apply()
			rep.Write(os.Stdout)

			// Tuning is best-effort: a rejected knob degrades
			// measurement quality, not correctness.
			return nil
		},
	}

	cmd.Flags().IntVar(&loMTU, "lo-mtu", 1500,
		"Loopback MTU to apply (0 = leave unchanged)")

	return cmd
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
) error {
	if cfg.client == "" || cfg.server == "" {
		return fmt.Errorf("both --client and --server must be specified")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	workDir := cfg.workDir
	if workDir == "" {
		workDir = "."
	}

	binDir := filepath.Join(workDir, "bin")
	wwwDir := filepath.Join(workDir, "www")

	logger.InfoContext(ctx, "starting benchmark",
		slog.String("client", cfg.client),
		slog.String("server", cfg.server),
		slog.String("cc", cfg.cc),
		slog.Bool("pacing", cfg.pacing),
		slog.Int64("transfer_size", cfg.transferSize),
	)

	// Step 1: Stage the pre-built binaries and the transfer file.
	if !cfg.skipStage {
		impls := []string{cfg.client}
		if cfg.server != cfg.client {
			impls = append(impls, cfg.server)
		}

		err := staging.Stage(staging.Config{
			ArtifactsDir:    cfg.artifactsDir,
			BinDir:          binDir,
			Implementations: impls,
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("stage artifacts: %w", err)
		}
	}

	transferPath, err := staging.WriteTransferFile(wwwDir, cfg.transferSize)
	if err != nil {
		return fmt.Errorf("write transfer file: %w", err)
	}

	logger.InfoContext(ctx, "transfer file ready",
		slog.String("path", transferPath),
	)

	// Step 2: Tune the host, best-effort.
	if !cfg.skipTune {
		tuner := &tuning.Tuner{
			SysfsRoot:   topology.DefaultSysfsRoot,
			LoopbackMTU: cfg.loMTU,
			Logger:      logger,
		}
		rep := tuner.Apply()
		rep.Write(os.Stderr)
	}

	// Step 3: Pick the CPUs. Degraded topologies warn, never fail.
	topo, err := topology.Read(topology.DefaultSysfsRoot)
	if err != nil {
		logger.Warn("reading CPU topology failed",
			slog.String("error", err.Error()),
		)
		topo = topology.Map{}
	}

	serverCPU, clientCPU := topology.SelectCores(topo, logger)

	logger.InfoContext(ctx, "cores selected",
		slog.Int("server_cpu", serverCPU),
		slog.Int("client_cpu", clientCPU),
	)

	// Step 4: Build the command pair.
	clientCmd, serverCmd, name, err := commands.Pair(
		cfg.client, cfg.server, commands.Options{
			Host:         cfg.host,
			Port:         cfg.port,
			TransferSize: cfg.transferSize,
			CC:           cfg.cc,
			Pacing:       cfg.pacing,
			BinDir:       binDir,
			CertDir:      cfg.certDir,
			WWWDir:       wwwDir,
		},
	)
	if err != nil {
		return err
	}

	// Step 5: Start and verify the server, teardown guaranteed.
	ctrl := session.New(session.Config{
		Server: serverCmd.Pinned(serverCPU),
		Port:   cfg.port,
		Settle: cfg.settle,
		Logger: logger,
	})

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer ctrl.Teardown()

	// Step 6: Run the client under the harness.
	configPath := filepath.Join(workDir, name+".yaml")

	err = harness.WriteConfig(configPath, harness.Config{
		Name:      name,
		Command:   clientCmd.Pinned(clientCPU).String(),
		Warmup:    cfg.warmup,
		MinRounds: cfg.minRounds,
	})
	if err != nil {
		return err
	}

	runner := harness.NewRunner(name, cfg.harnessBin, logger)

	results, err := runner.Run(ctx, harness.RunConfig{
		ConfigPath: configPath,
		Env:        clientCmd.Env,
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", name, err)
	}

	// Step 7: Report.
	if cfg.outputJSON {
		if err := report.GenerateJSON(os.Stdout, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	} else {
		if err := report.Generate(os.Stdout, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	logger.InfoContext(ctx, "benchmark complete",
		slog.String("benchmark", name),
	)

	return nil
}
