package manager

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentMonitorFiresOnDeath(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	// Reap immediately so the killed child does not linger as a zombie,
	// a zombie still answers Signal(0).
	go func() { _ = cmd.Wait() }()

	died := make(chan struct{})
	pm := &ParentMonitor{
		monitoredPID: cmd.Process.Pid,
		interval:     20 * time.Millisecond,
		onDeath:      func() { close(died) },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pm.Start(ctx)

	require.NoError(t, cmd.Process.Kill())

	select {
	case <-died:
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not notice process death")
	}
}

func TestParentMonitorIgnoresLiveProcess(t *testing.T) {
	died := make(chan struct{})
	pm := &ParentMonitor{
		monitoredPID: os.Getpid(),
		interval:     20 * time.Millisecond,
		onDeath:      func() { close(died) },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pm.Start(ctx)

	select {
	case <-died:
		t.Fatal("monitor fired for a live process")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewParentMonitorEnvOverride(t *testing.T) {
	t.Setenv(monitorPIDEnv, "424242")
	pm := NewParentMonitor(nil)
	assert.Equal(t, 424242, pm.monitoredPID)
}

func TestNewParentMonitorDefaultsToParent(t *testing.T) {
	t.Setenv(monitorPIDEnv, "")
	pm := NewParentMonitor(nil)
	assert.Equal(t, os.Getppid(), pm.monitoredPID)
}
