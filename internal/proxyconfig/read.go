package proxyconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// workerConfig covers the scalar fields quotio reads back. The worker owns
// the full schema; unknown fields are ignored here.
type workerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	AuthDir          string `yaml:"auth-dir"`
	RemoteManagement struct {
		AllowRemote bool   `yaml:"allow-remote"`
		SecretKey   string `yaml:"secret-key"`
	} `yaml:"remote-management"`
}

func (s *Store) load() (*workerConfig, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var cfg workerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse worker config: %w", err)
	}
	return &cfg, nil
}

// Port reads the configured worker port, falling back to def when the file
// or field is absent.
func (s *Store) Port(def int) int {
	cfg, err := s.load()
	if err != nil || cfg.Port == 0 {
		return def
	}
	return cfg.Port
}

// Host reads the configured bind host, falling back to def.
func (s *Store) Host(def string) string {
	cfg, err := s.load()
	if err != nil || strings.TrimSpace(cfg.Host) == "" {
		return def
	}
	return cfg.Host
}

// AuthDir resolves the configured auth token directory, expanding a leading
// tilde the way the worker does.
func (s *Store) AuthDir() (string, error) {
	cfg, err := s.load()
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(cfg.AuthDir)
	if dir == "" {
		return "", fmt.Errorf("auth-dir not configured")
	}
	if strings.HasPrefix(dir, "~/") || dir == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			if dir == "~" {
				dir = home
			} else {
				dir = filepath.Join(home, strings.TrimPrefix(dir, "~/"))
			}
		}
	}
	return dir, nil
}

// Endpoint forms the base URL of the worker's HTTP surface.
func Endpoint(host string, port int) string {
	return fmt.Sprintf("http://%s:%d", host, port)
}

// ManagementURL forms the URL of the worker's management UI/API.
func ManagementURL(host string, port int) string {
	return Endpoint(host, port) + "/v0/management"
}
