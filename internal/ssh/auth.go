package ssh

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/security"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethods builds the SSH auth methods for resolved credentials. The
// private key bytes are wiped once parsed.
func AuthMethods(creds ports.Credentials, useAgent bool) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if len(creds.PrivateKey) > 0 {
		signer, err := parsePrivateKey(creds.PrivateKey, creds.KeyPassphrase)
		security.WipeBytes(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if creds.Password != "" {
		methods = append(methods, PasswordAuth(creds.Password), KeyboardInteractiveAuth(creds.Password))
	}

	if useAgent {
		if m, err := agentAuth(); err == nil {
			methods = append(methods, m)
		} else {
			slog.Debug("ssh agent unavailable", slog.String("error", err.Error()))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no authentication methods available")
	}
	return methods, nil
}

func parsePrivateKey(pem []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pem)
}

func agentAuth() (ssh.AuthMethod, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, errors.New("SSH_AUTH_SOCK not set")
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// PasswordAuth returns a password auth method.
func PasswordAuth(password string) ssh.AuthMethod {
	return ssh.Password(password)
}

// KeyboardInteractiveAuth answers every keyboard-interactive question with
// the password.
func KeyboardInteractiveAuth(password string) ssh.AuthMethod {
	return ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	})
}

// HostKeyCallback verifies host keys against knownHostsPath. When the file
// does not exist, or insecure is set, every host key is accepted.
func HostKeyCallback(knownHostsPath string, insecure bool, fsys ports.FileSystem) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if knownHostsPath == "" {
		knownHostsPath = "~/.ssh/known_hosts"
	}
	expanded := ExpandPath(knownHostsPath, fsys)

	if _, err := fsys.Stat(expanded); errors.Is(err, fs.ErrNotExist) {
		slog.Warn("known_hosts not found, host keys will not be verified", slog.String("path", expanded))
		return ssh.InsecureIgnoreHostKey(), nil
	}

	callback, err := knownhosts.New(expanded)
	if err != nil {
		return nil, fmt.Errorf("parse known_hosts: %w", err)
	}
	return callback, nil
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string, fsys ports.FileSystem) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := fsys.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
