package proxyconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "config.yaml"))
}

func TestEnsureExists_CreatesDocument(t *testing.T) {
	s := newTestStore(t)

	err := s.EnsureExists(Defaults{
		Host:    "127.0.0.1",
		Port:    8317,
		AuthDir: "/home/alice/.config/quotio/auths",
		Secret:  "s3cret",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "host: 127.0.0.1")
	assert.Contains(t, content, "port: 8317")
	assert.Contains(t, content, `auth-dir: "/home/alice/.config/quotio/auths"`)
	assert.Contains(t, content, `secret-key: "s3cret"`)
	assert.Contains(t, content, "allow-remote: false")
	assert.Contains(t, content, "strategy: round-robin")
	assert.Contains(t, content, "switch-project: true")
	assert.Contains(t, content, "request-retry: 3")

	// The generated document must parse as well-formed YAML
	assert.Equal(t, 8317, s.Port(0))
	assert.Equal(t, "127.0.0.1", s.Host(""))
}

func TestEnsureExists_GeneratesAPIKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureExists(Defaults{Secret: "x"}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	// One non-empty quoted list entry under api-keys
	lines := strings.Split(string(data), "\n")
	var found bool
	for i, line := range lines {
		if strings.HasPrefix(line, "api-keys:") && i+1 < len(lines) {
			entry := strings.TrimSpace(lines[i+1])
			found = strings.HasPrefix(entry, `- "`) && len(entry) > len(`- ""`)
		}
	}
	assert.True(t, found, "expected a generated api key entry")
}

func TestEnsureExists_Idempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.EnsureExists(Defaults{Secret: "first"}))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	// Second call must not rewrite anything, not even the generated api key
	require.NoError(t, s.EnsureExists(Defaults{Secret: "second"}))
	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	assert.Equal(t, string(before), string(after))
}

func TestEnsureExists_PreservesExistingFile(t *testing.T) {
	s := newTestStore(t)
	custom := "# hand edited\nport: 9999\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(custom), 0o600))

	require.NoError(t, s.EnsureExists(Defaults{Port: 8317, Secret: "x"}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))
}

func TestSetField_ReplacesFirstMatchOnly(t *testing.T) {
	s := newTestStore(t)
	content := "host: 127.0.0.1\nport: 8080\ndebug: false\n# port: 8080 in a comment\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o600))

	s.SetField(`(?m)^port:\s*\d+`, "port: 9090")

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "host: 127.0.0.1\nport: 9090\ndebug: false\n# port: 8080 in a comment\n", string(data))
}

func TestSetField_OnlyTouchesFirstOfMultipleMatches(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("request-retry: 1\nrequest-retry: 2\n"), 0o600))

	s.SetField(`request-retry:\s*\d+`, "request-retry: 9")

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, "request-retry: 9\nrequest-retry: 2\n", string(data))
}

func TestSetField_AbsentFieldIsNoop(t *testing.T) {
	s := newTestStore(t)
	content := "host: 127.0.0.1\ndebug: false\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o600))

	s.SetField(`(?m)^port:\s*\d+`, "port: 9090")

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestSetField_MissingFileIsNoop(t *testing.T) {
	s := newTestStore(t)

	// Must not create the file or panic
	s.SetField(`port`, "port: 1")

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestSyncPort(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureExists(Defaults{Port: 8317, Secret: "x"}))

	s.SyncPort(9090)

	assert.Equal(t, 9090, s.Port(0))
}

func TestSyncLoggingToFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureExists(Defaults{Secret: "x"}))

	s.SyncLoggingToFile(false)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "logging-to-file: false")
	assert.NotContains(t, string(data), "logging-to-file: true")
}

func TestSyncSecret_QuotedValue(t *testing.T) {
	s := newTestStore(t)
	content := "remote-management:\n  allow-remote: false\n  secret-key: \"old-secret\"\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o600))

	s.SyncSecret("new-secret")

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `secret-key: "new-secret"`)
	assert.NotContains(t, string(data), "old-secret")
}

func TestSyncSecret_UnquotedValue(t *testing.T) {
	s := newTestStore(t)
	// The worker leaves an unquoted bcrypt hash behind after hashing the secret
	content := "remote-management:\n  allow-remote: false\n  secret-key: $2a$10$abcdefghijklmnopqrstuv\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o600))

	s.SyncSecret("fresh-secret")

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `secret-key: "fresh-secret"`)
	assert.NotContains(t, string(data), "$2a$10$")
}

func TestSyncSecret_MissingFileIsNoop(t *testing.T) {
	s := newTestStore(t)
	s.SyncSecret("whatever")

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestPort_FallsBackToDefault(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 8317, s.Port(8317))

	require.NoError(t, os.WriteFile(s.Path(), []byte("host: x\n"), 0o600))
	assert.Equal(t, 8317, s.Port(8317))
}

func TestAuthDir_ExpandsTilde(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("auth-dir: \"~/.config/quotio/auths\"\n"), 0o600))

	dir, err := s.AuthDir()
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config/quotio/auths"), dir)
}

func TestAuthDir_NotConfigured(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("port: 8317\n"), 0o600))

	_, err := s.AuthDir()
	assert.Error(t, err)
}

func TestEndpointURLs(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8317", Endpoint("127.0.0.1", 8317))
	assert.Equal(t, "http://127.0.0.1:8317/v0/management", ManagementURL("127.0.0.1", 8317))
}
