package proxyctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RuntimeState is the on-disk record of the supervised worker, used to
// re-adopt a worker that survived an app restart.
type RuntimeState struct {
	PID        int       `json:"pid"`
	ExePath    string    `json:"exe_path"`
	ConfigPath string    `json:"config_path"`
	StartedAt  time.Time `json:"started_at"`
}

// StateFile persists RuntimeState as JSON at a fixed path.
type StateFile struct {
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

func (f *StateFile) Path() string {
	return f.path
}

// Load returns the persisted state, or (nil, nil) when no file exists.
func (f *StateFile) Load() (*RuntimeState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var s RuntimeState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse runtime state file: %w", err)
	}
	return &s, nil
}

func (f *StateFile) Save(s *RuntimeState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// ClearPID zeroes the recorded pid but keeps the rest of the state around.
// A missing file stays missing.
func (f *StateFile) ClearPID() error {
	s, err := f.Load()
	if err != nil || s == nil {
		return err
	}
	if s.PID == 0 {
		return nil
	}
	s.PID = 0
	return f.Save(s)
}
