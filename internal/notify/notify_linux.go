//go:build linux

package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

type dbusNotifier struct {
	appName string
}

func platformNotifier(appName string) Notifier {
	return dbusNotifier{appName: appName}
}

// Notify posts to org.freedesktop.Notifications on the session bus. The
// shared bus connection stays open, dbus.SessionBus hands out a singleton.
func (n dbusNotifier) Notify(title, body string) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	obj := conn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.Call("org.freedesktop.Notifications.Notify", 0,
		n.appName,
		uint32(0), // no notification to replace
		"",        // no icon
		title,
		body,
		[]string{},
		map[string]dbus.Variant{},
		int32(-1), // server default expiry
	)
	if call.Err != nil {
		return fmt.Errorf("notification call failed: %w", call.Err)
	}
	return nil
}
