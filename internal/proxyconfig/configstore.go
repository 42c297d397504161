// Package proxyconfig manages the worker's config.yaml. The file is user
// editable, so known scalar fields are patched in place with targeted regex
// substitution instead of a parse/serialize round-trip that would destroy
// comments and unknown fields.
package proxyconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
)

// Store manages a single worker config file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Defaults seeds the initial config document written by EnsureExists.
type Defaults struct {
	Host    string
	Port    int
	AuthDir string
	// Secret is the plaintext management secret. The worker replaces it with
	// a bcrypt hash on first use.
	Secret string
}

// EnsureExists writes the default config document when no file is present.
// An existing file is never touched, whatever its content.
func (s *Store) EnsureExists(d Defaults) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat worker config: %w", err)
	}

	if d.Host == "" {
		d.Host = "127.0.0.1"
	}
	if d.Port == 0 {
		d.Port = 8317
	}

	doc := fmt.Sprintf(`# cli-proxy-api-plus configuration managed by quotio.
host: %s
port: %d
auth-dir: "%s"
api-keys:
  - "%s"
debug: false
logging-to-file: true
usage-statistics-enabled: false
request-retry: 3
max-retry-interval: 30
quota-exceeded:
  switch-project: true
  switch-preview-model: true
routing:
  strategy: round-robin
remote-management:
  allow-remote: false
  secret-key: "%s"
`, d.Host, d.Port, d.AuthDir, uuid.NewString(), d.Secret)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := writeFileAtomic(s.path, []byte(doc), 0o600); err != nil {
		return fmt.Errorf("failed to write worker config: %w", err)
	}
	return nil
}

// SetField replaces the first match of pattern with replacement and persists
// the result atomically. A missing file or absent field is a silent no-op:
// config sync is a best-effort side channel and must never block process
// start, so I/O failures are logged and swallowed.
func (s *Store) SetField(pattern, replacement string) {
	s.patchFirst(pattern, replacement)
}

// patchFirst reports whether the pattern matched (and the patch was applied
// or already in place).
func (s *Store) patchFirst(pattern, replacement string) bool {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read worker config for patch", "error", err)
		}
		return false
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		slog.Warn("Invalid worker config patch pattern", "pattern", pattern, "error", err)
		return false
	}

	loc := re.FindIndex(data)
	if loc == nil {
		return false
	}

	patched := make([]byte, 0, len(data)-(loc[1]-loc[0])+len(replacement))
	patched = append(patched, data[:loc[0]]...)
	patched = append(patched, replacement...)
	patched = append(patched, data[loc[1]:]...)

	if bytes.Equal(patched, data) {
		return true
	}

	if err := writeFileAtomic(s.path, patched, 0o600); err != nil {
		slog.Warn("Failed to persist worker config patch", "error", err)
	}
	return true
}

// SyncPort rewrites the port field to match the runtime port.
func (s *Store) SyncPort(port int) {
	s.SetField(`(?m)^port:\s*\d+`, fmt.Sprintf("port: %d", port))
}

// SyncLoggingToFile rewrites the logging-to-file flag.
func (s *Store) SyncLoggingToFile(enabled bool) {
	s.SetField(`(?m)^logging-to-file:\s*\S+`, fmt.Sprintf("logging-to-file: %t", enabled))
}

// SyncSecret rewrites remote-management.secret-key with the plaintext secret.
// The quoted form is tried first, then the unquoted form left behind when the
// worker rewrites the field with its bcrypt hash.
func (s *Store) SyncSecret(secret string) {
	replacement := fmt.Sprintf("secret-key: %q", secret)
	if s.patchFirst(`secret-key:\s*"[^"]*"`, replacement) {
		return
	}
	s.SetField(`secret-key:\s*[^\s#]+`, replacement)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
