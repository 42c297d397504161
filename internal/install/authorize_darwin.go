//go:build darwin

package install

import (
	"log/slog"
	"os/exec"
)

// authorizeExecution ad-hoc signs the binary and strips the quarantine
// attribute so Gatekeeper lets a freshly downloaded binary run. Both steps
// are best-effort, a failure leaves the binary in place.
func authorizeExecution(path string) {
	if out, err := exec.Command("/usr/bin/codesign", "--force", "--sign", "-", path).CombinedOutput(); err != nil {
		slog.Warn("Failed to ad-hoc sign binary", "path", path, "error", err, "output", string(out))
	}
	if out, err := exec.Command("/usr/bin/xattr", "-d", "com.apple.quarantine", path).CombinedOutput(); err != nil {
		// Missing attribute is the common case, keep it quiet.
		slog.Debug("Could not remove quarantine attribute", "path", path, "error", err, "output", string(out))
	}
}
