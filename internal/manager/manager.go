// Package manager wires the supervision pieces together: worker config,
// supervisor, auth runner, installer, event log and notifier. CLI commands
// act on the facade directly; serve mode additionally exposes it over a
// local HTTP API.
package manager

import (
	"fmt"
	"log/slog"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/events"
	"github.com/jkyin/quotio/internal/install"
	"github.com/jkyin/quotio/internal/notify"
	"github.com/jkyin/quotio/internal/proxyconfig"
	"github.com/jkyin/quotio/internal/proxyctl"
	"github.com/jkyin/quotio/internal/release"
)

const appName = "Quotio"

// Manager owns the full supervision state for one quotio installation.
type Manager struct {
	Store      *proxyconfig.Store
	Supervisor *proxyctl.Supervisor
	Auth       *proxyctl.AuthRunner
	Installer  *install.Manager

	// Events is nil when the event log could not be opened; everything
	// else keeps working without it.
	Events   *events.DB
	Notifier notify.Notifier
}

// AppStatus merges worker runtime state with install state.
type AppStatus struct {
	Proxy   proxyctl.Status `json:"proxy"`
	Install install.State   `json:"install"`
	Version string          `json:"app_version"`
}

// New builds a manager rooted at the configured base directory, seeds the
// worker config on first run and adopts a still-running worker recorded in
// the state file.
func New() (*Manager, error) {
	store := proxyconfig.NewStore(core.WorkerConfigPath())

	secret, err := core.EnsureManagementSecret()
	if err != nil {
		slog.Warn("Failed to ensure management secret", "error", err)
	}
	if err := store.EnsureExists(proxyconfig.Defaults{
		Port:    core.GetPort(),
		AuthDir: core.AuthDir(),
		Secret:  secret,
	}); err != nil {
		return nil, fmt.Errorf("failed to prepare worker config: %w", err)
	}

	states := proxyctl.NewStateFile(core.StateFilePath())
	sup := proxyctl.NewSupervisor(core.WorkerBinaryPath(), store, states)
	sup.SecretFn = core.GetManagementSecret

	auth := proxyctl.NewAuthRunner(core.WorkerBinaryPath(), store.Path())
	sup.Auth = auth

	fetcher := release.NewFetcher(core.GetReleaseEndpoint(), core.UserAgent())
	installer := install.NewManager(fetcher, core.WorkerBinaryPath())

	notifier := notify.New(appName, core.GetNotificationsEnabled())

	m := &Manager{
		Store:      store,
		Supervisor: sup,
		Auth:       auth,
		Installer:  installer,
		Notifier:   notifier,
	}

	if db, err := events.Open(core.EventsDBPath()); err != nil {
		slog.Error("Failed to open event log", "error", err, "path", core.EventsDBPath())
	} else {
		m.Events = db
		sup.Events = db
		auth.Events = db
		installer.Events = db
	}

	sup.OnCrash = func(exitCode int) {
		notify.ProcessCrashed(m.Notifier, exitCode)
	}
	installer.OnInstalled = func(version string) {
		notify.InstallCompleted(m.Notifier, version)
	}

	if sup.Adopt() {
		slog.Info("Adopted running worker", "pid", sup.Status().PID)
	}

	return m, nil
}

// Status returns the combined view used by the status command and the
// control API.
func (m *Manager) Status() AppStatus {
	return AppStatus{
		Proxy:   m.Supervisor.Status(),
		Install: m.Installer.State(),
		Version: core.Version,
	}
}

// SetPort persists a new port in the app settings and syncs it into the
// worker config. The change takes effect on the next worker start.
func (m *Manager) SetPort(port int) error {
	if err := core.SetPort(port); err != nil {
		return err
	}
	m.Store.SyncPort(port)
	return nil
}

// Close releases everything New opened. In-flight auth sessions are killed,
// the running worker is left alone.
func (m *Manager) Close() {
	if m.Auth != nil {
		m.Auth.Terminate()
	}
	if m.Events != nil {
		if err := m.Events.Close(); err != nil {
			slog.Warn("Failed to close event log", "error", err)
		}
	}
}
