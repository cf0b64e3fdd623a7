// Package staging prepares a benchmark run on disk: it copies the
// pre-built implementation binaries into the layout the command
// generator expects and produces the transfer file the clients fetch.
package staging

import (
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"os"
	"path/filepath"
	"strconv"
)

// Config controls artifact staging.
type Config struct {
	// ArtifactsDir contains one subdirectory per implementation with
	// the pre-built binaries supplied by the upstream build pipelines.
	ArtifactsDir string
	// BinDir is where the binaries are staged, one subdirectory per
	// implementation.
	BinDir string
	// Implementations lists the names to stage.
	Implementations []string
	Logger          *slog.Logger
}

// Stage copies the pre-built binaries for each implementation into
// BinDir and marks them executable. A missing artifact directory is a
// fatal configuration error: a benchmark without its binaries is
// meaningless.
func Stage(cfg Config) error {
	for _, impl := range cfg.Implementations {
		src := filepath.Join(cfg.ArtifactsDir, impl)
		dst := filepath.Join(cfg.BinDir, impl)

		n, err := copyDir(src, dst)
		if err != nil {
			return fmt.Errorf("stage %s: %w", impl, err)
		}
		if n == 0 {
			return fmt.Errorf("stage %s: no binaries in %s", impl, src)
		}

		cfg.Logger.Info("staged implementation",
			slog.String("implementation", impl),
			slog.Int("files", n),
			slog.String("dir", dst),
		)
	}

	return nil
}

// copyDir copies every regular file in src to dst with mode 0755 and
// returns the number of files copied. Subdirectories are copied one
// level deep, which covers the shared-library layouts the msquic
// artifacts use.
func copyDir(src, dst string) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, err
	}

	var copied int

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			n, err := copyDir(srcPath, dstPath)
			if err != nil {
				return copied, err
			}
			copied += n

			continue
		}

		if !entry.Type().IsRegular() {
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return copied, err
		}
		copied++
	}

	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()

		return fmt.Errorf("copy %s: %w", dst, err)
	}

	return out.Close()
}

// transferSeed makes the payload reproducible across runs so repeated
// benchmarks serve identical bytes.
const transferSeed = 4433

// WriteTransferFile writes a deterministic pseudo-random payload of
// exactly size bytes into dir, named by its decimal size (the path
// component of the client URL), and returns the file path.
func WriteTransferFile(dir string, size int64) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("transfer size must be positive, got %d", size)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create www dir: %w", err)
	}

	path := filepath.Join(dir, strconv.FormatInt(size, 10))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create transfer file: %w", err)
	}

	rng := mrand.New(mrand.NewSource(transferSeed))
	buf := make([]byte, 64*1024)

	remaining := size
	for remaining > 0 {
		chunk := buf
		if remaining < int64(len(buf)) {
			chunk = buf[:remaining]
		}

		rng.Read(chunk)

		if _, err := f.Write(chunk); err != nil {
			f.Close()

			return "", fmt.Errorf("write transfer file: %w", err)
		}

		remaining -= int64(len(chunk))
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close transfer file: %w", err)
	}

	return path, nil
}
