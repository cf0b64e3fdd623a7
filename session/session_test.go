package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quicbench/perfcompare/commands"
)

const udpHeader = "  sl  local_address rem_address   st tx_queue rx_queue " +
	"tr tm->when retrnsmt   uid  timeout inode ref pointer drops\n"

// boundLine is a /proc/net/udp entry for 127.0.0.1:4433 (0x1151).
const boundLine = "   0: 0100007F:1151 00000000:0000 07 00000000:00000000 " +
	"00:00000000 00000000     0        0 98765 2 ffff888 0\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProc builds a procfs root whose net/udp table has the given
// contents.
func fakeProc(t *testing.T, udp string) string {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "net"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "net", "udp"), []byte(udp), 0o644); err != nil {
		t.Fatal(err)
	}

	return root
}

func TestScanPort(t *testing.T) {
	inodes := make(map[string]bool)
	matched := scanPort(strings.NewReader(udpHeader+boundLine), 4433, inodes)

	if !matched {
		t.Fatal("expected match for bound port 4433")
	}
	if !inodes["98765"] {
		t.Errorf("inodes = %v, want 98765 collected", inodes)
	}
}

func TestScanPortNoMatch(t *testing.T) {
	if scanPort(strings.NewReader(udpHeader+boundLine), 8443, nil) {
		t.Error("unexpected match for unbound port")
	}
}

func TestScanPortHeaderOnly(t *testing.T) {
	if scanPort(strings.NewReader(udpHeader), 4433, nil) {
		t.Error("unexpected match on empty table")
	}
}

func TestSocketInode(t *testing.T) {
	if inode, ok := socketInode("socket:[12345]"); !ok || inode != "12345" {
		t.Errorf("socketInode = (%q, %v), want (12345, true)", inode, ok)
	}
	if _, ok := socketInode("pipe:[999]"); ok {
		t.Error("pipe link must not parse as socket")
	}
	if _, ok := socketInode("/dev/null"); ok {
		t.Error("file link must not parse as socket")
	}
}

func TestPortBound(t *testing.T) {
	root := fakeProc(t, udpHeader+boundLine)

	bound, err := portBound(root, 4433)
	if err != nil {
		t.Fatalf("portBound failed: %v", err)
	}
	if !bound {
		t.Error("expected port 4433 bound")
	}

	bound, err = portBound(root, 4434)
	if err != nil {
		t.Fatalf("portBound failed: %v", err)
	}
	if bound {
		t.Error("port 4434 must not be bound")
	}
}

func TestStartAndTeardown(t *testing.T) {
	ctrl := New(Config{
		Server:   commands.Command{Path: "sleep", Args: []string{"60"}},
		Port:     4433,
		Settle:   50 * time.Millisecond,
		ProcRoot: fakeProc(t, udpHeader+boundLine),
		Logger:   discardLogger(),
	})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctrl.Teardown()
	// Second teardown must be a no-op, not an error or a hang.
	ctrl.Teardown()
}

func TestStartServerExitsEarly(t *testing.T) {
	ctrl := New(Config{
		Server:   commands.Command{Path: "true"},
		Port:     4433,
		Settle:   time.Second,
		ProcRoot: fakeProc(t, udpHeader+boundLine),
		Logger:   discardLogger(),
	})

	err := ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("expected error for server that exits immediately")
	}
	if !strings.Contains(err.Error(), "settle") {
		t.Errorf("error = %v, want settle-period diagnostic", err)
	}

	ctrl.Teardown()
}

func TestStartPortNeverBound(t *testing.T) {
	ctrl := New(Config{
		Server:   commands.Command{Path: "sleep", Args: []string{"60"}},
		Port:     4433,
		Settle:   50 * time.Millisecond,
		ProcRoot: fakeProc(t, udpHeader),
		Logger:   discardLogger(),
	})

	err := ctrl.Start(context.Background())
	if err == nil {
		t.Fatal("expected error for unbound port")
	}
	if !strings.Contains(err.Error(), "not listening") {
		t.Errorf("error = %v, want not-listening diagnostic", err)
	}

	// Start already tore the server down; another call must still be
	// safe.
	ctrl.Teardown()
}

func TestStartCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ctrl := New(Config{
		Server:   commands.Command{Path: "sleep", Args: []string{"60"}},
		Port:     4433,
		Settle:   time.Minute,
		ProcRoot: fakeProc(t, udpHeader+boundLine),
		Logger:   discardLogger(),
	})

	if err := ctrl.Start(ctx); err == nil {
		t.Fatal("expected context error")
	}

	ctrl.Teardown()
}

func TestTeardownWithoutStart(t *testing.T) {
	ctrl := New(Config{Port: 4433, Logger: discardLogger()})
	ctrl.Teardown()
	ctrl.Teardown()
}
