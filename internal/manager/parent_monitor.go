package manager

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"syscall"
	"time"
)

// monitorPIDEnv names the process serve mode should live and die with.
// The desktop shell sets it when spawning quotio so the API never outlives
// the app window.
const monitorPIDEnv = "QUOTIO_MONITOR_PID"

// ParentMonitor polls a process and fires a callback when it dies. Polling
// via Signal(0) works for any PID, direct parent or not, which SIGHUP and
// parent-death signals do not.
type ParentMonitor struct {
	monitoredPID int
	interval     time.Duration
	onDeath      func()
}

// NewParentMonitor watches the PID from QUOTIO_MONITOR_PID when set,
// otherwise the actual parent.
func NewParentMonitor(onDeath func()) *ParentMonitor {
	pid := os.Getppid()
	if raw := os.Getenv(monitorPIDEnv); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			pid = parsed
			slog.Debug("Monitoring external PID from "+monitorPIDEnv,
				"monitor_pid", parsed,
				"ppid", os.Getppid())
		}
	}
	return &ParentMonitor{
		monitoredPID: pid,
		interval:     5 * time.Second,
		onDeath:      onDeath,
	}
}

func (pm *ParentMonitor) Start(ctx context.Context) {
	slog.Info("Starting parent process monitor", "monitor_pid", pm.monitoredPID)
	go pm.poll(ctx)
}

func (pm *ParentMonitor) poll(ctx context.Context) {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := syscall.Kill(pm.monitoredPID, 0); err != nil {
				slog.Info("Monitored process died, shutting down",
					"monitor_pid", pm.monitoredPID)
				pm.onDeath()
				return
			}
		}
	}
}
