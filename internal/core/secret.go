package core

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jkyin/quotio/internal/keyring"
)

const secretKeyName = "management-secret"

// ErrSecretLooksHashed is returned when a caller tries to store a bcrypt hash
// as the management secret. The worker rewrites secret-key in its config file
// with the bcrypt hash of the plaintext on first use, so a value read back
// from the config must never displace the stored plaintext.
var ErrSecretLooksHashed = errors.New("management secret looks like a bcrypt hash")

// EnsureManagementSecret returns the stored management secret, generating and
// persisting a new one when none exists yet.
func EnsureManagementSecret() (string, error) {
	secret, err := GetManagementSecret()
	if err == nil && secret != "" {
		return secret, nil
	}

	secret, err = generateSecret()
	if err != nil {
		return "", fmt.Errorf("failed to generate management secret: %w", err)
	}
	if err := storeSecret(secret); err != nil {
		return "", err
	}
	return secret, nil
}

// GetManagementSecret reads the management secret from the OS keyring,
// falling back to the secret file in the base directory.
func GetManagementSecret() (string, error) {
	secret, err := keyring.Get(secretKeyName)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("Keyring unavailable, trying secret file", "error", err)
	}

	data, err := os.ReadFile(secretFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", keyring.ErrNotFound
		}
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetManagementSecret replaces the stored management secret. Empty values and
// values that parse as a bcrypt hash are rejected.
func SetManagementSecret(secret string) error {
	if secret == "" {
		return errors.New("management secret must not be empty")
	}
	if LooksHashed(secret) {
		return ErrSecretLooksHashed
	}
	return storeSecret(secret)
}

// LooksHashed reports whether s parses as a bcrypt hash.
func LooksHashed(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

func storeSecret(secret string) error {
	if err := keyring.Set(secretKeyName, secret); err == nil {
		// Keyring is authoritative, drop any stale file copy.
		os.Remove(secretFilePath())
		return nil
	} else {
		slog.Debug("Keyring unavailable, storing secret in file", "error", err)
	}

	path := secretFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return fmt.Errorf("failed to write secret file: %w", err)
	}
	return nil
}

func secretFilePath() string {
	return filepath.Join(BaseDir(), "secret")
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
