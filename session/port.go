package session

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// udpTables are the procfs socket tables checked for the benchmark
// port, relative to the procfs root.
var udpTables = []string{"net/udp", "net/udp6"}

// portBound reports whether any UDP socket is bound to port.
func portBound(procRoot string, port int) (bool, error) {
	for _, table := range udpTables {
		f, err := os.Open(filepath.Join(procRoot, table))
		if err != nil {
			// udp6 is absent on v4-only kernels.
			continue
		}

		bound := scanPort(f, port, nil)
		f.Close()

		if bound {
			return true, nil
		}
	}

	return false, nil
}

// portOwners returns the PIDs of processes holding a UDP socket bound
// to port, found by matching socket inodes against /proc/*/fd links.
func portOwners(procRoot string, port int) ([]int, error) {
	inodes := make(map[string]bool)

	for _, table := range udpTables {
		f, err := os.Open(filepath.Join(procRoot, table))
		if err != nil {
			continue
		}

		scanPort(f, port, inodes)
		f.Close()
	}

	if len(inodes) == 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", procRoot, err)
	}

	var pids []int

	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		fdDir := filepath.Join(procRoot, entry.Name(), "fd")

		fds, err := os.ReadDir(fdDir)
		if err != nil {
			// Not ours to inspect; other processes' fd tables need
			// matching privileges.
			continue
		}

		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}

			inode, ok := socketInode(target)
			if ok && inodes[inode] {
				pids = append(pids, pid)

				break
			}
		}
	}

	return pids, nil
}

// scanPort walks one procfs socket table looking for sockets whose
// local address ends in the hex-encoded port. When inodes is non-nil
// the matching socket inodes are collected into it. Reports whether
// any line matched.
func scanPort(r io.Reader, port int, inodes map[string]bool) bool {
	suffix := fmt.Sprintf(":%04X", port)

	matched := false

	scanner := bufio.NewScanner(r)
	scanner.Scan() // header line

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}

		matched = true

		if inodes != nil {
			inodes[fields[9]] = true
		}
	}

	return matched
}

// socketInode extracts N from an fd link target of the form
// "socket:[N]".
func socketInode(target string) (string, bool) {
	rest, ok := strings.CutPrefix(target, "socket:[")
	if !ok {
		return "", false
	}

	inode, ok := strings.CutSuffix(rest, "]")
	if !ok {
		return "", false
	}

	return inode, true
}
