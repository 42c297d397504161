package proxyctl

import (
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ValidateWorkerProcess checks that pid is alive and still looks like the
// worker we started. Guards against adopting an unrelated process after PID
// reuse.
func ValidateWorkerProcess(pid int, exePath string) bool {
	if pid <= 0 {
		return false
	}

	// Null signal, only checks existence and permission to signal.
	if err := unix.Kill(pid, 0); err != nil {
		slog.Debug("Worker process not accessible", "pid", pid, "error", err)
		return false
	}

	cmdline, err := processCommandLine(pid)
	if err != nil {
		slog.Debug("Failed to read worker command line", "pid", pid, "error", err)
		return false
	}

	if !matchesWorkerCommandLine(cmdline, exePath) {
		slog.Debug("Worker command line mismatch",
			"pid", pid,
			"expected_exe", exePath,
			"actual", cmdline)
		return false
	}

	return true
}

// matchesWorkerCommandLine accepts a command line that names the worker
// binary and carries the -config flag we launch it with. Contains matching,
// the worker may decorate its own argv.
func matchesWorkerCommandLine(cmdline, exePath string) bool {
	base := filepath.Base(exePath)
	if base == "" || base == "." {
		return false
	}
	if !strings.Contains(cmdline, base) {
		return false
	}
	return strings.Contains(cmdline, "-config")
}
