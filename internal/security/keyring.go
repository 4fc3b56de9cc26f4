// Package security provides credential storage and handling for shelltabs.
package security

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/acolita/shelltabs/internal/ports"
	"github.com/zalando/go-keyring"
)

// KeyringStore is the SecretStore backed by the OS keyring (macOS Keychain,
// Linux Secret Service, Windows Credential Manager).
type KeyringStore struct{}

// NewKeyringStore returns a keyring-backed store.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Get returns the secret for service/account. A missing entry is not an error.
func (ks *KeyringStore) Get(service, account string) (string, bool, error) {
	if service == "" || account == "" {
		return "", false, errors.New("keyring: service and account are required")
	}
	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("keyring get %s/%s: %w", service, account, err)
	}
	return secret, true, nil
}

// Set stores or replaces the secret for service/account.
func (ks *KeyringStore) Set(service, account, secret string) error {
	if service == "" || account == "" {
		return errors.New("keyring: service and account are required")
	}
	if err := keyring.Set(service, account, secret); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", service, account, err)
	}
	slog.Debug("stored secret in keyring", slog.String("service", service), slog.String("account", account))
	return nil
}

// Delete removes the secret for service/account. Deleting a missing entry
// succeeds.
func (ks *KeyringStore) Delete(service, account string) error {
	if err := keyring.Delete(service, account); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("keyring delete %s/%s: %w", service, account, err)
	}
	return nil
}

// Available reports whether the OS keyring accepts writes.
func (ks *KeyringStore) Available(service string) bool {
	const probe = "__shelltabs_probe__"
	if err := keyring.Set(service, probe, "probe"); err != nil {
		slog.Debug("keyring not available", slog.String("error", err.Error()))
		return false
	}
	_ = keyring.Delete(service, probe)
	return true
}

var _ ports.SecretStore = (*KeyringStore)(nil)
