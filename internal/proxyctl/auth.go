package proxyctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
)

// AuthFlow names one of the worker's sign-in modes.
type AuthFlow string

const (
	AuthFlowGemini  AuthFlow = "gemini"
	AuthFlowCodex   AuthFlow = "codex"
	AuthFlowClaude  AuthFlow = "claude"
	AuthFlowQwen    AuthFlow = "qwen"
	AuthFlowIFlow   AuthFlow = "iflow"
	AuthFlowKiroAWS AuthFlow = "kiro-aws"
)

type authCommand struct {
	label string
	args  []string
}

// authCommands is the closed set of supported flows. Flags match the worker
// CLI contract, one literal flag per flow.
var authCommands = map[AuthFlow]authCommand{
	AuthFlowGemini:  {"Gemini", []string{"-login"}},
	AuthFlowCodex:   {"Codex", []string{"-codex-login"}},
	AuthFlowClaude:  {"Claude", []string{"-claude-login"}},
	AuthFlowQwen:    {"Qwen", []string{"-qwen-login"}},
	AuthFlowIFlow:   {"iFlow", []string{"-iflow-login"}},
	AuthFlowKiroAWS: {"Kiro (AWS Builder ID)", []string{"-kiro-aws-login"}},
}

// AuthFlows lists the supported flows in stable order.
func AuthFlows() []AuthFlow {
	flows := make([]AuthFlow, 0, len(authCommands))
	for flow := range authCommands {
		flows = append(flows, flow)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i] < flows[j] })
	return flows
}

// ParseAuthFlow maps a user supplied name onto a known flow.
func ParseAuthFlow(name string) (AuthFlow, error) {
	flow := AuthFlow(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := authCommands[flow]; !ok {
		return "", fmt.Errorf("unknown auth flow %q (valid: %s)", name, joinFlows())
	}
	return flow, nil
}

func joinFlows() string {
	flows := AuthFlows()
	parts := make([]string, len(flows))
	for i, f := range flows {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// Label returns the human display name for a flow.
func (f AuthFlow) Label() string {
	if cmd, ok := authCommands[f]; ok {
		return cmd.label
	}
	return string(f)
}

// AuthResult is delivered exactly once per Run invocation.
type AuthResult struct {
	Flow       AuthFlow `json:"flow"`
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	DeviceCode string   `json:"device_code,omitempty"`
}

// AuthEventLogger records auth session events. May be nil.
type AuthEventLogger interface {
	LogAuthEvent(flow, eventType, details string) error
}

// deviceCodeMarker is the prompt phrase the worker prints before a device
// code.
const deviceCodeMarker = "enter the code:"

// AuthRunner drives short-lived worker sign-in invocations. Sessions are
// last-writer-wins: starting a new one terminates the previous handle.
type AuthRunner struct {
	BinaryPath string
	ConfigPath string

	// ScrapeWait is how long Run lets the process talk before scraping
	// its output for a device code. Default 3s.
	ScrapeWait time.Duration

	// CopyToClipboard receives any captured device code. Defaults to the
	// system clipboard.
	CopyToClipboard func(string) error

	Events AuthEventLogger

	mu      sync.Mutex
	current *exec.Cmd
}

func NewAuthRunner(binaryPath, configPath string) *AuthRunner {
	return &AuthRunner{
		BinaryPath:      binaryPath,
		ConfigPath:      configPath,
		ScrapeWait:      3 * time.Second,
		CopyToClipboard: clipboard.WriteAll,
	}
}

// Run starts the flow's worker invocation and resolves exactly once: on
// clean exit, on spawn failure, or after the scrape wait while the process
// is still talking to the user's browser. Run never errors, failures arrive
// as Success=false results.
func (r *AuthRunner) Run(ctx context.Context, flow AuthFlow) AuthResult {
	spec, ok := authCommands[flow]
	if !ok {
		return AuthResult{Flow: flow, Success: false, Message: fmt.Sprintf("unknown auth flow %q", flow)}
	}

	// Last writer wins.
	r.Terminate()

	args := append([]string{"-config", r.ConfigPath}, spec.args...)
	cmd := exec.Command(r.BinaryPath, args...)
	cmd.Dir = filepath.Dir(r.BinaryPath)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	// Both streams feed the session buffer; device codes have shown up on
	// either depending on worker version.
	var output sessionBuffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		r.logEvent(flow, "spawn_failed", err.Error())
		return AuthResult{
			Flow:    flow,
			Success: false,
			Message: fmt.Sprintf("Failed to start %s sign-in: %v", spec.label, err),
		}
	}

	r.mu.Lock()
	r.current = cmd
	r.mu.Unlock()
	r.logEvent(flow, "started", fmt.Sprintf("PID: %d", cmd.Process.Pid))

	cell := newResultCell()

	// Exit watcher: a clean exit resolves success immediately, anything
	// else resolves failure. The event is recorded either way, the exit
	// is the true outcome even when the scrape path already delivered
	// the result.
	go func() {
		err := cmd.Wait()

		r.mu.Lock()
		if r.current == cmd {
			r.current = nil
		}
		r.mu.Unlock()

		if err == nil {
			r.logEvent(flow, "completed", "")
			cell.resolve(AuthResult{
				Flow:    flow,
				Success: true,
				Message: fmt.Sprintf("%s sign-in completed.", spec.label),
			})
			return
		}
		r.logEvent(flow, "failed", err.Error())
		cell.resolve(AuthResult{
			Flow:    flow,
			Success: false,
			Message: fmt.Sprintf("%s sign-in failed: %v", spec.label, err),
		})
	}()

	// Scrape timer: after the wait, a still-running process means the
	// user is mid-flow in the browser. Surface the device code if one
	// was printed.
	go func() {
		timer := time.NewTimer(r.scrapeWait())
		defer timer.Stop()

		select {
		case <-ctx.Done():
			if cell.resolve(AuthResult{
				Flow:    flow,
				Success: false,
				Message: fmt.Sprintf("%s sign-in cancelled.", spec.label),
			}) {
				r.logEvent(flow, "cancelled", ctx.Err().Error())
				r.Terminate()
			}
			return
		case <-timer.C:
		}

		if code, found := ExtractDeviceCode(output.String()); found {
			r.copyCode(code)
			if cell.resolve(AuthResult{
				Flow:       flow,
				Success:    true,
				Message:    fmt.Sprintf("Enter the code %s in your browser to finish %s sign-in (copied to clipboard).", code, spec.label),
				DeviceCode: code,
			}) {
				r.logEvent(flow, "device_code", code)
			}
			return
		}
		if cell.resolve(AuthResult{
			Flow:    flow,
			Success: true,
			Message: fmt.Sprintf("Continue %s sign-in in your browser.", spec.label),
		}) {
			r.logEvent(flow, "browser_handoff", "")
		}
	}()

	return cell.wait()
}

// SessionActive reports whether a sign-in helper process is still being
// tracked. A session that resolved with a browser handoff stays active
// until the helper exits.
func (r *AuthRunner) SessionActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Terminate kills any tracked session process, best-effort and
// non-blocking.
func (r *AuthRunner) Terminate() {
	r.mu.Lock()
	cmd := r.current
	r.current = nil
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	slog.Debug("Terminating previous auth session", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Debug("Failed to kill auth session", "error", err)
	}
}

func (r *AuthRunner) scrapeWait() time.Duration {
	if r.ScrapeWait > 0 {
		return r.ScrapeWait
	}
	return 3 * time.Second
}

func (r *AuthRunner) copyCode(code string) {
	if r.CopyToClipboard == nil {
		return
	}
	if err := r.CopyToClipboard(code); err != nil {
		slog.Debug("Failed to copy device code to clipboard", "error", err)
	}
}

func (r *AuthRunner) logEvent(flow AuthFlow, eventType, details string) {
	if r.Events == nil {
		return
	}
	_ = r.Events.LogAuthEvent(string(flow), eventType, details)
}

// ExtractDeviceCode pulls the device code out of captured session output:
// everything after the first marker up to the next newline, trimmed. Falls
// back to a per-line scan.
func ExtractDeviceCode(output string) (string, bool) {
	if idx := strings.Index(strings.ToLower(output), deviceCodeMarker); idx >= 0 {
		rest := output[idx+len(deviceCodeMarker):]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		if code := strings.TrimSpace(rest); code != "" {
			return code, true
		}
	}

	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(strings.ToLower(line), deviceCodeMarker); idx >= 0 {
			if code := strings.TrimSpace(line[idx+len(deviceCodeMarker):]); code != "" {
				return code, true
			}
		}
	}
	return "", false
}

// sessionBuffer accumulates subprocess output safely across the exec
// package's copier goroutines and our scrape timer.
type sessionBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *sessionBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *sessionBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// resultCell delivers at most one AuthResult no matter how many writers
// race to resolve it.
type resultCell struct {
	once sync.Once
	ch   chan AuthResult
}

func newResultCell() *resultCell {
	return &resultCell{ch: make(chan AuthResult, 1)}
}

// resolve commits the first result and reports whether this caller won.
func (c *resultCell) resolve(res AuthResult) bool {
	committed := false
	c.once.Do(func() {
		c.ch <- res
		committed = true
	})
	return committed
}

// wait blocks until some writer has committed.
func (c *resultCell) wait() AuthResult {
	return <-c.ch
}
