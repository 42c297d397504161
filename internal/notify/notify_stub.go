//go:build !linux && !darwin

package notify

func platformNotifier(appName string) Notifier {
	return LogNotifier{}
}
