package session

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/acolita/shelltabs/internal/config"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/ssh"
)

// Params describes the remote end of a tab.
type Params struct {
	Host string
	Port int
	User string

	// AuthMode is config.AuthPassword or config.AuthKey.
	AuthMode string
	// SecretRef is the secret store account holding the password.
	SecretRef string
	// KeyPath is the private key file; a leading ~/ is expanded.
	KeyPath string
	// PassphraseRef optionally names the key passphrase in the secret store.
	PassphraseRef string
}

// ParamsFromServer converts a configured server profile.
func ParamsFromServer(s config.ServerConfig) Params {
	return Params{
		Host:          s.Host,
		Port:          s.Port,
		User:          s.User,
		AuthMode:      s.Auth.Type,
		SecretRef:     s.Auth.SecretRef,
		KeyPath:       s.Auth.KeyPath,
		PassphraseRef: s.Auth.PassphraseRef,
	}
}

func (p Params) port() int {
	if p.Port == 0 {
		return 22
	}
	return p.Port
}

// resolveCredentials loads the secret material for p.
func (r *Registry) resolveCredentials(p Params) (ports.Credentials, error) {
	switch p.AuthMode {
	case config.AuthPassword:
		if p.SecretRef == "" {
			return ports.Credentials{}, fmt.Errorf("%w: no secret reference", ErrAuthSetup)
		}
		password, err := r.lookupSecret(p.SecretRef)
		if err != nil {
			return ports.Credentials{}, err
		}
		return ports.Credentials{Password: password}, nil

	case config.AuthKey:
		if p.KeyPath == "" {
			return ports.Credentials{}, fmt.Errorf("%w: no key path", ErrAuthSetup)
		}
		path := ssh.ExpandPath(p.KeyPath, r.fs)
		if _, err := r.fs.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return ports.Credentials{}, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
			}
			return ports.Credentials{}, fmt.Errorf("%w: stat %s: %v", ErrAuthSetup, path, err)
		}
		key, err := r.fs.ReadFile(path)
		if err != nil {
			return ports.Credentials{}, fmt.Errorf("%w: read %s: %v", ErrAuthSetup, path, err)
		}
		creds := ports.Credentials{PrivateKey: key}
		if p.PassphraseRef != "" {
			passphrase, err := r.lookupSecret(p.PassphraseRef)
			if err != nil {
				return ports.Credentials{}, err
			}
			creds.KeyPassphrase = passphrase
		}
		return creds, nil

	default:
		return ports.Credentials{}, fmt.Errorf("%w: unsupported auth mode %q", ErrAuthSetup, p.AuthMode)
	}
}

func (r *Registry) lookupSecret(account string) (string, error) {
	if r.secrets == nil {
		return "", fmt.Errorf("%w: no secret store", ErrAuthSetup)
	}
	secret, found, err := r.secrets.Get(r.secretService, account)
	if err != nil {
		return "", fmt.Errorf("%w: secret store: %v", ErrAuthSetup, err)
	}
	if !found || secret == "" {
		return "", fmt.Errorf("%w: no secret stored for %q", ErrAuthSetup, account)
	}
	return secret, nil
}
