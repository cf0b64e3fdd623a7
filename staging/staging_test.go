package staging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStage(t *testing.T) {
	artifacts := t.TempDir()
	bin := t.TempDir()

	files := map[string]string{
		"quiche/quiche-server":      "server bits",
		"quiche/quiche-client":      "client bits",
		"msquic/quicinterop":        "client bits",
		"msquic/lib/libmsquic.so.2": "library bits",
	}
	for name, content := range files {
		path := filepath.Join(artifacts, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	err := Stage(Config{
		ArtifactsDir:    artifacts,
		BinDir:          bin,
		Implementations: []string{"quiche", "msquic"},
		Logger:          discardLogger(),
	})
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	for name, content := range files {
		path := filepath.Join(bin, name)

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("staged file missing: %v", err)
		}
		if info.Mode().Perm()&0o111 == 0 {
			t.Errorf("%s is not executable: %v", name, info.Mode())
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(raw) != content {
			t.Errorf("%s content = %q, want %q", name, raw, content)
		}
	}
}

func TestStageMissingArtifacts(t *testing.T) {
	err := Stage(Config{
		ArtifactsDir:    t.TempDir(),
		BinDir:          t.TempDir(),
		Implementations: []string{"quiche"},
		Logger:          discardLogger(),
	})
	if err == nil {
		t.Error("expected error for missing artifact directory")
	}
}

func TestStageEmptyArtifacts(t *testing.T) {
	artifacts := t.TempDir()
	if err := os.MkdirAll(filepath.Join(artifacts, "neqo"), 0o755); err != nil {
		t.Fatal(err)
	}

	err := Stage(Config{
		ArtifactsDir:    artifacts,
		BinDir:          t.TempDir(),
		Implementations: []string{"neqo"},
		Logger:          discardLogger(),
	})
	if err == nil {
		t.Error("expected error for empty artifact directory")
	}
}

func TestWriteTransferFile(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteTransferFile(dir, 200_000)
	if err != nil {
		t.Fatalf("WriteTransferFile failed: %v", err)
	}

	if filepath.Base(path) != "200000" {
		t.Errorf("file name = %q, want 200000", filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 200_000 {
		t.Errorf("size = %d, want 200000", info.Size())
	}
}

func TestWriteTransferFileDeterministic(t *testing.T) {
	first, err := WriteTransferFile(t.TempDir(), 100_000)
	if err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	second, err := WriteTransferFile(t.TempDir(), 100_000)
	if err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(a, b) {
		t.Error("transfer payloads differ between runs")
	}
}

func TestWriteTransferFileInvalidSize(t *testing.T) {
	if _, err := WriteTransferFile(t.TempDir(), 0); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := WriteTransferFile(t.TempDir(), -1); err == nil {
		t.Error("expected error for negative size")
	}
}
