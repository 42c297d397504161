//go:build darwin

package proxyctl

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// processCommandLine shells out to ps, macOS has no /proc.
func processCommandLine(pid int) (string, error) {
	cmd := exec.Command("/bin/ps", "-p", strconv.Itoa(pid), "-o", "command=")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ps command failed for PID %d: %w", pid, err)
	}

	cmdline := strings.TrimSpace(string(output))
	if cmdline == "" {
		return "", fmt.Errorf("empty command line for PID %d", pid)
	}
	return cmdline, nil
}
