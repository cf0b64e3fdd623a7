// Package commands builds the exact server and client invocations for
// each supported QUIC implementation pairing. Commands are typed
// descriptors; they only become exec.Cmd values at the spawn boundary,
// so no shell quoting happens anywhere in between.
package commands

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Supported implementation names.
const (
	Quiche = "quiche"
	Google = "google"
	Neqo   = "neqo"
	S2n    = "s2n"
	MsQuic = "msquic"
)

// interopFlag enables the protocol-compatibility mode required when
// pairing google or quiche with s2n or msquic.
const interopFlag = "--interop"

// Known returns the supported implementation names.
func Known() []string {
	return []string{Quiche, Google, Neqo, S2n, MsQuic}
}

// Command is an invocation descriptor: program path, ordered argument
// list and extra environment entries.
type Command struct {
	Path string
	Args []string
	Env  []string
}

// String renders the command as a single shell-safe line, used only
// for the harness configuration record and log output.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, arg := range c.Args {
		parts = append(parts, quote(arg))
	}

	return strings.Join(parts, " ")
}

// Exec builds the exec.Cmd for this descriptor. The caller owns
// stdio and environment merging.
func (c Command) Exec() *exec.Cmd {
	return exec.Command(c.Path, c.Args...)
}

// Pinned wraps the command in taskset so every thread the binary
// creates stays on the given logical CPU.
func (c Command) Pinned(cpu int) Command {
	args := make([]string, 0, len(c.Args)+3)
	args = append(args, "-c", strconv.Itoa(cpu), c.Path)
	args = append(args, c.Args...)

	return Command{Path: "taskset", Args: args, Env: c.Env}
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t'\"\\$") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}

	return s
}

// Options carries the pairing-independent benchmark parameters.
type Options struct {
	Host         string
	Port         int
	TransferSize int64
	// CC selects the congestion controller, cubic or reno.
	CC string
	// Pacing spaces outgoing packets instead of sending bursts.
	Pacing bool
	// BinDir holds the staged binaries, one subdirectory per
	// implementation.
	BinDir string
	// CertDir holds cert.crt and cert.key.
	CertDir string
	// WWWDir holds the transfer file, named by its decimal size.
	WWWDir string
}

func (o Options) addr() string {
	return o.Host + ":" + strconv.Itoa(o.Port)
}

func (o Options) url() string {
	return fmt.Sprintf("https://%s/%d", o.addr(), o.TransferSize)
}

func (o Options) cert() string { return filepath.Join(o.CertDir, "cert.crt") }
func (o Options) key() string  { return filepath.Join(o.CertDir, "cert.key") }

func (o Options) bin(impl, name string) string {
	return filepath.Join(o.BinDir, impl, name)
}

// Pair builds the client and server commands for the named
// implementations plus the derived benchmark name. Unknown names are a
// configuration error; nothing is constructed in that case.
func Pair(client, server string, opts Options) (Command, Command, string, error) {
	clientCmd, err := clientCommand(client, opts)
	if err != nil {
		return Command{}, Command{}, "", err
	}

	serverCmd, err := serverCommand(server, opts)
	if err != nil {
		return Command{}, Command{}, "", err
	}

	if needsInterop(client, server) {
		clientCmd.Args = append(clientCmd.Args, interopFlag)
		serverCmd.Args = append(serverCmd.Args, interopFlag)
	}

	return clientCmd, serverCmd, benchName(client, server, opts), nil
}

// benchName derives the human-readable label for the pairing. Only
// same-implementation pairings encode the congestion-control and
// pacing variant, since that is where variants are compared.
func benchName(client, server string, opts Options) string {
	name := client + "-" + server

	if client == server {
		if opts.CC != "cubic" {
			name += "-" + opts.CC
		}
		if !opts.Pacing {
			name += "-no-pacing"
		}
	}

	return name
}

// needsInterop reports whether the pairing crosses the compatibility
// boundary between the google/quiche family and the s2n/msquic family.
func needsInterop(client, server string) bool {
	inFamilyA := func(impl string) bool {
		return impl == Google || impl == Quiche
	}
	inFamilyB := func(impl string) bool {
		return impl == S2n || impl == MsQuic
	}

	return (inFamilyA(client) && inFamilyB(server)) ||
		(inFamilyB(client) && inFamilyA(server))
}

func serverCommand(impl string, opts Options) (Command, error) {
	switch impl {
	case Quiche:
		return Command{
			Path: opts.bin(impl, "quiche-server"),
			Args: compact([]string{
				"--listen", opts.addr(),
				"--cert", opts.cert(),
				"--key", opts.key(),
				"--root", opts.WWWDir,
				"--cc-algorithm", opts.CC,
				pacingArg(opts, "--disable-pacing"),
			}),
		}, nil

	case Google:
		return Command{
			Path: opts.bin(impl, "quic_server"),
			Args: []string{
				"--certificate_file=" + opts.cert(),
				"--key_file=" + opts.key(),
				"--port=" + strconv.Itoa(opts.Port),
				"--quic_response_cache_dir=" + opts.WWWDir,
			},
			Env: runtimeEnv(impl, opts),
		}, nil

	case Neqo:
		return Command{
			Path: opts.bin(impl, "neqo-server"),
			Args: compact([]string{
				"--db", opts.CertDir,
				"--cc", opts.CC,
				pacingArg(opts, "--no-pacing"),
				opts.addr(),
			}),
		}, nil

	case S2n:
		return Command{
			Path: opts.bin(impl, "s2n-quic-qns"),
			Args: []string{
				"interop", "server",
				"--ip", opts.Host,
				"--port", strconv.Itoa(opts.Port),
				"--certificate", opts.cert(),
				"--private-key", opts.key(),
				"--www-dir", opts.WWWDir,
			},
		}, nil

	case MsQuic:
		return Command{
			Path: opts.bin(impl, "quicinteropserver"),
			Args: []string{
				"-listen:" + opts.Host,
				"-port:" + strconv.Itoa(opts.Port),
				"-root:" + opts.WWWDir,
				"-file:" + opts.cert(),
				"-key:" + opts.key(),
			},
			Env: runtimeEnv(impl, opts),
		}, nil

	default:
		return Command{}, fmt.Errorf(
			"unknown server implementation %q (supported: %s)",
			impl, strings.Join(Known(), ", "),
		)
	}
}

func clientCommand(impl string, opts Options) (Command, error) {
	switch impl {
	case Quiche:
		return Command{
			Path: opts.bin(impl, "quiche-client"),
			Args: compact([]string{
				"--no-verify",
				"--cc-algorithm", opts.CC,
				pacingArg(opts, "--disable-pacing"),
				opts.url(),
			}),
		}, nil

	case Google:
		return Command{
			Path: opts.bin(impl, "quic_client"),
			Args: []string{
				"--disable_certificate_verification",
				"--host=" + opts.Host,
				"--port=" + strconv.Itoa(opts.Port),
				opts.url(),
			},
			Env: runtimeEnv(impl, opts),
		}, nil

	case Neqo:
		return Command{
			Path: opts.bin(impl, "neqo-client"),
			Args: compact([]string{
				"--output-dir", "/dev/null",
				"--cc", opts.CC,
				pacingArg(opts, "--no-pacing"),
				opts.url(),
			}),
		}, nil

	case S2n:
		return Command{
			Path: opts.bin(impl, "s2n-quic-qns"),
			Args: []string{
				"interop", "client",
				"--tls-disable-verification",
				"--download-dir", "/dev/null",
				opts.url(),
			},
		}, nil

	case MsQuic:
		return Command{
			Path: opts.bin(impl, "quicinterop"),
			Args: []string{
				"-custom:" + opts.Host,
				"-port:" + strconv.Itoa(opts.Port),
				"-urls:" + opts.url(),
			},
			Env: runtimeEnv(impl, opts),
		}, nil

	default:
		return Command{}, fmt.Errorf(
			"unknown client implementation %q (supported: %s)",
			impl, strings.Join(Known(), ", "),
		)
	}
}

// pacingArg folds the pacing toggle into the implementation's
// disable flag; pacing on yields an empty placeholder that compact
// strips.
func pacingArg(opts Options, disableFlag string) string {
	if opts.Pacing {
		return ""
	}

	return disableFlag
}

// compact drops empty placeholder arguments.
func compact(args []string) []string {
	out := args[:0]
	for _, arg := range args {
		if arg != "" {
			out = append(out, arg)
		}
	}

	return out
}

// runtimeEnv returns the environment entries an implementation's
// runtime linker needs. Pass-through only; nothing here interprets
// the values.
func runtimeEnv(impl string, opts Options) []string {
	switch impl {
	case MsQuic:
		return []string{
			"LD_LIBRARY_PATH=" + filepath.Join(opts.BinDir, impl),
		}
	case Google:
		return []string{
			"SSL_CERT_DIR=" + opts.CertDir,
			"SSL_CERT_FILE=" + filepath.Join(opts.CertDir, "cert.crt"),
		}
	default:
		return nil
	}
}
