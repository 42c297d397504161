//go:build darwin

package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

type osascriptNotifier struct {
	appName string
}

func platformNotifier(appName string) Notifier {
	return osascriptNotifier{appName: appName}
}

// Notify shells out to osascript, Notification Center has no public CLI.
func (n osascriptNotifier) Notify(title, body string) error {
	script := fmt.Sprintf("display notification \"%s\" with title \"%s\" subtitle \"%s\"",
		escapeAppleScript(body), escapeAppleScript(n.appName), escapeAppleScript(title))

	if out, err := exec.Command("/usr/bin/osascript", "-e", script).CombinedOutput(); err != nil {
		return fmt.Errorf("osascript failed: %v (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
