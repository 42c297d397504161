package proxyctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jkyin/quotio/internal/core"
	"github.com/jkyin/quotio/internal/proxyconfig"
)

// ProcessState tracks the worker through its lifecycle.
type ProcessState string

const (
	StateStopped  ProcessState = "stopped"
	StateStarting ProcessState = "starting"
	StateRunning  ProcessState = "running"
)

var (
	// ErrBinaryNotFound means Start was called before any worker binary
	// was installed.
	ErrBinaryNotFound = errors.New("worker binary is not installed")
	// ErrStartupFailed means the worker exited before the confirmation
	// delay elapsed.
	ErrStartupFailed = errors.New("worker exited during startup")
)

// ProxyEventLogger records worker lifecycle events. May be nil.
type ProxyEventLogger interface {
	LogProxyEvent(eventType, details string) error
}

// Status is the externally visible runtime state of the worker.
type Status struct {
	State     ProcessState `json:"state"`
	Running   bool         `json:"running"`
	Listening bool         `json:"listening"`
	PID       int          `json:"pid,omitempty"`
	Port      int          `json:"port"`
	Endpoint  string       `json:"endpoint"`
	StartedAt time.Time    `json:"started_at"`
	LastError string       `json:"last_error,omitempty"`
}

// Supervisor owns the single long-running worker process. At most one
// process handle exists at a time; Start/Stop/Toggle/Adopt are serialized
// against each other.
type Supervisor struct {
	BinaryPath string
	Store      *proxyconfig.Store
	States     *StateFile

	// ConfirmationDelay is how long a freshly spawned worker must stay
	// alive before Start reports success. A stand-in for a real
	// readiness probe, the worker exposes no cheap health endpoint
	// during boot.
	ConfirmationDelay time.Duration
	// StopTimeout bounds the SIGTERM grace period before SIGKILL.
	StopTimeout time.Duration

	// DetachOutput redirects worker output to this file instead of the
	// pipes feeding Output. One-shot runs set it: a pipe loses its
	// reader when the spawning process exits, and the worker dies on
	// its next write.
	DetachOutput string

	Output  *OutputBroadcaster
	Auth    *AuthRunner
	Events  ProxyEventLogger
	OnCrash func(exitCode int)

	// SecretFn supplies the management secret synced into the worker
	// config before each start. Optional.
	SecretFn func() (string, error)

	opMu sync.Mutex // serializes Start/Stop/Toggle/Adopt

	mu        sync.Mutex // guards the fields below
	state     ProcessState
	cmd       *exec.Cmd
	adopted   *os.Process
	pid       int
	startedAt time.Time
	lastErr   string
}

func NewSupervisor(binaryPath string, store *proxyconfig.Store, states *StateFile) *Supervisor {
	return &Supervisor{
		BinaryPath:        binaryPath,
		Store:             store,
		States:            states,
		ConfirmationDelay: 1500 * time.Millisecond,
		StopTimeout:       5 * time.Second,
		Output:            NewOutputBroadcaster(1000),
		state:             StateStopped,
	}
}

func (s *Supervisor) State() ProcessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start spawns the worker and confirms it survives the confirmation delay.
// Calling Start while already running is a successful no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	info, err := os.Stat(s.BinaryPath)
	if err != nil || info.IsDir() {
		s.setLastError(fmt.Sprintf("worker binary missing at %s", s.BinaryPath))
		return fmt.Errorf("%w: %s", ErrBinaryNotFound, s.BinaryPath)
	}

	s.setState(StateStarting)
	s.syncSecret()

	cmd := exec.Command(s.BinaryPath, "-config", s.Store.Path())
	cmd.Dir = filepath.Dir(s.BinaryPath)
	// The worker probes its terminal on boot and exits early when TERM is
	// unset or stdio is closed. Fake a terminal type and keep both
	// streams attached.
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	var stdout, stderr io.ReadCloser
	var logFile *os.File
	if s.DetachOutput != "" {
		logFile, err = openDetachLog(s.DetachOutput)
		if err != nil {
			s.setState(StateStopped)
			return fmt.Errorf("failed to open worker log: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	} else {
		stdout, err = cmd.StdoutPipe()
		if err != nil {
			s.setState(StateStopped)
			return fmt.Errorf("failed to open stdout pipe: %w", err)
		}
		stderr, err = cmd.StderrPipe()
		if err != nil {
			s.setState(StateStopped)
			return fmt.Errorf("failed to open stderr pipe: %w", err)
		}
	}

	slog.Info("Starting worker", "binary", s.BinaryPath, "config", s.Store.Path())
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		s.setState(StateStopped)
		s.setLastError(err.Error())
		return fmt.Errorf("failed to start worker: %w", err)
	}
	if logFile != nil {
		// The child holds its own descriptor now.
		logFile.Close()
	}

	s.mu.Lock()
	s.cmd = cmd
	s.adopted = nil
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.lastErr = ""
	s.mu.Unlock()

	if stdout != nil {
		go s.drain(stdout)
		go s.drain(stderr)
	}
	go s.monitor(cmd)

	select {
	case <-time.After(s.ConfirmationDelay):
	case <-ctx.Done():
		_ = s.stop()
		return ctx.Err()
	}

	s.mu.Lock()
	if s.cmd != cmd || s.state != StateStarting {
		lastErr := s.lastErr
		s.mu.Unlock()
		if lastErr != "" {
			return fmt.Errorf("%w: %s", ErrStartupFailed, lastErr)
		}
		return ErrStartupFailed
	}
	s.state = StateRunning
	pid := s.pid
	startedAt := s.startedAt
	s.mu.Unlock()

	s.saveRuntimeState(pid, startedAt)
	s.logEvent("started", fmt.Sprintf("PID: %d", pid))
	slog.Info("Worker running", "pid", pid)
	return nil
}

// Stop terminates any in-flight auth session, then the worker itself, and
// blocks until the worker is gone. Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stop()
}

func (s *Supervisor) stop() error {
	// Auth sessions never outlive an explicit stop.
	if s.Auth != nil {
		s.Auth.Terminate()
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	cmd := s.cmd
	adopted := s.adopted
	pid := s.pid
	s.cmd = nil
	s.adopted = nil
	s.pid = 0
	s.mu.Unlock()

	var process *os.Process
	switch {
	case cmd != nil && cmd.Process != nil:
		process = cmd.Process
	case adopted != nil:
		process = adopted
	}
	if process == nil {
		return nil
	}

	slog.Info("Stopping worker", "pid", pid)
	err := gracefulTerminate(process, s.StopTimeout, "worker")
	s.clearStatePID()
	s.logEvent("stopped", fmt.Sprintf("PID: %d", pid))
	return err
}

// Toggle stops a running worker, otherwise starts it.
func (s *Supervisor) Toggle(ctx context.Context) error {
	if s.State() == StateRunning {
		return s.Stop()
	}
	return s.Start(ctx)
}

// Restart is stop-then-start.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start(ctx)
}

// Status reports the current runtime view, reading host and port from the
// worker config so the endpoint always reflects what the worker would bind.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	state := s.state
	pid := s.pid
	startedAt := s.startedAt
	lastErr := s.lastErr
	s.mu.Unlock()

	port := core.DefaultPort
	host := "127.0.0.1"
	if s.Store != nil {
		port = s.Store.Port(port)
		host = s.Store.Host(host)
	}

	listening := false
	if state == StateRunning && pid > 0 {
		listening = ListensOnPort(pid, port)
	}

	return Status{
		State:     state,
		Running:   state == StateRunning,
		Listening: listening,
		PID:       pid,
		Port:      port,
		Endpoint:  proxyconfig.Endpoint(host, port),
		StartedAt: startedAt,
		LastError: lastErr,
	}
}

// Adopt re-attaches to a worker left behind by a previous app run. Returns
// true when a live, validated worker was taken over.
func (s *Supervisor) Adopt() bool {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.States == nil {
		return false
	}
	st, err := s.States.Load()
	if err != nil || st == nil || st.PID <= 0 {
		return false
	}
	if !ValidateWorkerProcess(st.PID, s.BinaryPath) {
		s.clearStatePID()
		return false
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false
	}

	s.mu.Lock()
	s.adopted = proc
	s.cmd = nil
	s.pid = st.PID
	s.startedAt = st.StartedAt
	s.state = StateRunning
	s.lastErr = ""
	s.mu.Unlock()

	go s.monitorAdopted(proc)

	slog.Info("Adopted running worker", "pid", st.PID)
	s.logEvent("adopted", fmt.Sprintf("PID: %d", st.PID))
	return true
}

func (s *Supervisor) drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if s.Output != nil {
			s.Output.Broadcast(scanner.Text())
		}
	}
}

// monitor reaps the spawned worker and records how it went away. An exit
// while our bookkeeping still points at this cmd was not requested by Stop.
func (s *Supervisor) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd != cmd || s.state == StateStopped {
		s.mu.Unlock()
		return
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	s.state = StateStopped
	s.cmd = nil
	s.pid = 0
	var onCrash func(int)
	if exitCode != 0 {
		s.lastErr = fmt.Sprintf("worker exited with code %d", exitCode)
		onCrash = s.OnCrash
	}
	s.mu.Unlock()

	s.clearStatePID()

	if exitCode != 0 {
		slog.Warn("Worker exited unexpectedly", "exit_code", exitCode)
		s.logEvent("crashed", fmt.Sprintf("exit code %d", exitCode))
		if onCrash != nil {
			onCrash(exitCode)
		}
	} else {
		slog.Info("Worker exited", "exit_code", 0)
		s.logEvent("exited", "exit code 0")
	}
}

// monitorAdopted polls an adopted pid with the null signal. Wait only works
// for our own children.
func (s *Supervisor) monitorAdopted(proc *os.Process) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		if s.adopted != proc || s.state != StateRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if err := proc.Signal(syscall.Signal(0)); err == nil {
			continue
		}

		s.mu.Lock()
		if s.adopted != proc || s.state != StateRunning {
			s.mu.Unlock()
			return
		}
		s.state = StateStopped
		s.adopted = nil
		s.pid = 0
		s.lastErr = "adopted worker exited"
		onCrash := s.OnCrash
		s.mu.Unlock()

		s.clearStatePID()
		slog.Warn("Adopted worker exited")
		s.logEvent("crashed", "adopted worker exited, exit code unknown")
		if onCrash != nil {
			onCrash(-1)
		}
		return
	}
}

func (s *Supervisor) setState(st ProcessState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) setLastError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

// syncSecret pushes the management secret into the worker config. A side
// channel, a failure never blocks a start.
func (s *Supervisor) syncSecret() {
	if s.SecretFn == nil {
		return
	}
	secret, err := s.SecretFn()
	if err != nil {
		slog.Warn("Could not load management secret for config sync", "error", err)
		return
	}
	if secret != "" {
		s.Store.SyncSecret(secret)
	}
}

func (s *Supervisor) saveRuntimeState(pid int, startedAt time.Time) {
	if s.States == nil {
		return
	}
	err := s.States.Save(&RuntimeState{
		PID:        pid,
		ExePath:    s.BinaryPath,
		ConfigPath: s.Store.Path(),
		StartedAt:  startedAt,
	})
	if err != nil {
		slog.Warn("Failed to persist worker runtime state", "error", err)
	}
}

func (s *Supervisor) clearStatePID() {
	if s.States == nil {
		return
	}
	if err := s.States.ClearPID(); err != nil {
		slog.Debug("Failed to clear runtime state pid", "error", err)
	}
}

func (s *Supervisor) logEvent(eventType, details string) {
	if s.Events == nil {
		return
	}
	_ = s.Events.LogProxyEvent(eventType, details)
}

func openDetachLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

// gracefulTerminate sends SIGTERM and polls for death with the null signal,
// escalating to SIGKILL after timeout. Polling instead of Wait covers
// adopted processes that are not our children.
func gracefulTerminate(process *os.Process, timeout time.Duration, label string) error {
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		slog.Warn(fmt.Sprintf("Failed to send SIGTERM to %s, forcing kill", label), "error", err)
		return process.Kill()
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	slog.Warn(fmt.Sprintf("%s did not exit within %v, forcing kill", label, timeout))
	if err := process.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}

	time.Sleep(100 * time.Millisecond)
	if err := process.Signal(syscall.Signal(0)); err == nil {
		return fmt.Errorf("%s survived SIGKILL", label)
	}
	return nil
}
