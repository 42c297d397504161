package keyring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "quotio"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("keyring: not found")

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

// initKeyring opens the platform keyring once. Only native backends are
// allowed; when none is available callers fall back to file storage in the
// quotio base directory instead of keyring's encrypted-file backend, which
// would need an interactive password prompt quotio cannot show.
func initKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,      // macOS Keychain
				keyring.SecretServiceBackend, // Linux Secret Service (GNOME Keyring, KWallet)
				keyring.WinCredBackend,       // Windows Credential Manager
				keyring.PassBackend,          // Pass (password-store.org)
			},
		})
	})
	return ring, ringErr
}

// Set stores a secret under the given key.
func Set(key, value string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	return kr.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
}

// Get retrieves a stored secret. Returns ErrNotFound when nothing is stored
// under the key.
func Get(key string) (string, error) {
	kr, err := initKeyring()
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}

	item, err := kr.Get(key)
	if err == keyring.ErrKeyNotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret: %w", err)
	}
	return string(item.Data), nil
}

// Delete removes a stored secret.
func Delete(key string) error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	err = kr.Remove(key)
	if err == keyring.ErrKeyNotFound {
		return ErrNotFound
	}
	return err
}

// Has reports whether a secret is stored under the key.
func Has(key string) bool {
	kr, err := initKeyring()
	if err != nil {
		return false
	}

	_, err = kr.Get(key)
	return err == nil
}
