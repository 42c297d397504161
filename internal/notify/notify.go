// Package notify delivers desktop notifications for supervision events:
// worker crashes, completed installs, finished sign-ins.
package notify

import (
	"fmt"
	"log/slog"
)

// Notifier delivers one user-visible message. Delivery is best-effort,
// callers log and drop failures.
type Notifier interface {
	Notify(title, body string) error
}

// New returns the platform notifier, or the log-only notifier when
// notifications are disabled.
func New(appName string, enabled bool) Notifier {
	if !enabled {
		return LogNotifier{}
	}
	return platformNotifier(appName)
}

// LogNotifier writes notifications to the structured log instead of the
// desktop.
type LogNotifier struct{}

func (LogNotifier) Notify(title, body string) error {
	slog.Info("Notification", "title", title, "body", body)
	return nil
}

// ProcessCrashed posts the standard worker-crash notification.
func ProcessCrashed(n Notifier, exitCode int) {
	if n == nil {
		return
	}
	body := "The proxy exited unexpectedly."
	if exitCode >= 0 {
		body = fmt.Sprintf("The proxy exited unexpectedly with code %d.", exitCode)
	}
	if err := n.Notify("Proxy stopped", body); err != nil {
		slog.Warn("Failed to deliver crash notification", "error", err)
	}
}

// InstallCompleted posts the standard install-finished notification.
func InstallCompleted(n Notifier, version string) {
	if n == nil {
		return
	}
	body := "The proxy binary is installed and ready."
	if version != "" {
		body = fmt.Sprintf("Version %s is installed and ready.", version)
	}
	if err := n.Notify("Proxy updated", body); err != nil {
		slog.Warn("Failed to deliver install notification", "error", err)
	}
}
