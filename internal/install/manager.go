package install

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jkyin/quotio/internal/release"
)

// State is the installation surface shown to callers. Installed is derived
// from the filesystem, not from bookkeeping, so an externally deleted binary
// shows up as not installed on the next read.
type State struct {
	BinaryPath string  `json:"binary_path"`
	Installed  bool    `json:"installed"`
	Version    string  `json:"version,omitempty"`
	Progress   float64 `json:"progress"`
	LastError  string  `json:"last_error,omitempty"`
}

// EventLogger records install lifecycle events. A nil logger disables
// recording.
type EventLogger interface {
	LogInstallEvent(version, eventType, details string) error
}

// Manager downloads the latest worker release and installs it at TargetPath.
// Concurrent InstallLatest calls share a single in-flight operation.
type Manager struct {
	Fetcher    *release.Fetcher
	TargetPath string
	Platform   string
	Arch       string
	Events     EventLogger
	OnProgress func(float64)
	// OnInstalled fires once per completed install, not once per caller
	// joined to it.
	OnInstalled func(version string)

	group singleflight.Group

	mu       sync.Mutex
	progress float64
	version  string
	lastErr  string
}

func NewManager(fetcher *release.Fetcher, targetPath string) *Manager {
	return &Manager{
		Fetcher:    fetcher,
		TargetPath: targetPath,
		Platform:   runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
}

// State returns a snapshot of the current installation state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		BinaryPath: m.TargetPath,
		Installed:  m.binaryInstalled(),
		Version:    m.version,
		Progress:   m.progress,
		LastError:  m.lastErr,
	}
}

func (m *Manager) binaryInstalled() bool {
	info, err := os.Stat(m.TargetPath)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

// InstallLatest fetches release metadata, picks the asset matching this
// platform, downloads it and installs the binary. Progress moves through
// fixed milestones: 0.10 once metadata is in, 0.10 to 0.70 while
// downloading, 1.0 when the binary is in place. Calls that arrive while an
// install is running join it and get the same result.
func (m *Manager) InstallLatest(ctx context.Context) (State, error) {
	res, err, _ := m.group.Do("install", func() (any, error) {
		return m.installLatest(ctx)
	})
	if err != nil {
		return m.State(), err
	}
	return res.(State), nil
}

func (m *Manager) installLatest(ctx context.Context) (State, error) {
	m.begin()

	rel, err := m.Fetcher.FetchLatestRelease(ctx)
	if err != nil {
		return m.fail("", err)
	}
	m.setProgress(0.10)

	// Release tags carry a "v" prefix, state and events store the bare
	// version.
	version := strings.TrimPrefix(rel.Version(), "v")

	asset := release.SelectAsset(rel, m.Platform, m.Arch, release.DefaultExcludeTags(m.Platform))
	if asset == nil {
		return m.fail(version, fmt.Errorf("%w for %s_%s", release.ErrNoCompatibleBinary, m.Platform, m.Arch))
	}

	m.logEvent(version, "started", asset.Name)

	data, err := m.Fetcher.DownloadAsset(ctx, asset.BrowserDownloadURL, func(ratio float64) {
		m.setProgress(0.10 + ratio*0.60)
	})
	if err != nil {
		return m.fail(version, fmt.Errorf("%w: %v", ErrDownloadFailed, err))
	}
	m.setProgress(0.70)

	if err := Install(data, asset.Name, m.TargetPath); err != nil {
		return m.fail(version, err)
	}
	m.setProgress(1.0)

	m.mu.Lock()
	m.version = version
	m.mu.Unlock()

	m.logEvent(version, "completed", asset.Name)
	if m.OnInstalled != nil {
		m.OnInstalled(version)
	}
	return m.State(), nil
}

func (m *Manager) begin() {
	m.mu.Lock()
	m.progress = 0
	m.lastErr = ""
	m.mu.Unlock()
}

func (m *Manager) fail(version string, err error) (State, error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
	m.logEvent(version, "failed", err.Error())
	return m.State(), err
}

// setProgress only moves forward. Download callbacks and milestone writes
// may interleave, the reported value must never go backwards.
func (m *Manager) setProgress(p float64) {
	m.mu.Lock()
	if p < m.progress {
		p = m.progress
	} else {
		m.progress = p
	}
	cb := m.OnProgress
	m.mu.Unlock()

	if cb != nil {
		cb(p)
	}
}

func (m *Manager) logEvent(version, eventType, details string) {
	if m.Events == nil {
		return
	}
	_ = m.Events.LogInstallEvent(version, eventType, details)
}
