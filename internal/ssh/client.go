// Package ssh provides the SSH transport behind a tab: one authenticated
// connection, its interactive PTY shell and side exec channels.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/acolita/shelltabs/internal/adapters/realclock"
	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/adapters/realsshdialer"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// DialerOptions configures how transports are opened.
type DialerOptions struct {
	ReadyTimeout      time.Duration
	KeepaliveInterval time.Duration
	KnownHosts        string
	InsecureHostKey   bool
	UseAgent          bool

	Clock      ports.Clock
	SSHDialer  ports.SSHDialer
	FileSystem ports.FileSystem
}

// Dialer implements ports.TransportDialer over x/crypto/ssh.
type Dialer struct {
	opts DialerOptions
}

// NewDialer returns a Dialer, filling unset options with defaults.
func NewDialer(opts DialerOptions) *Dialer {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 20 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}
	if opts.SSHDialer == nil {
		opts.SSHDialer = realsshdialer.New()
	}
	if opts.FileSystem == nil {
		opts.FileSystem = realfs.New()
	}
	return &Dialer{opts: opts}
}

// Dial connects and authenticates within the ready timeout.
func (d *Dialer) Dial(ctx context.Context, target ports.Target) (ports.Transport, error) {
	if target.Host == "" {
		return nil, errors.New("host is required")
	}
	if target.User == "" {
		return nil, errors.New("user is required")
	}
	port := target.Port
	if port == 0 {
		port = 22
	}

	methods, err := AuthMethods(target.Credentials, d.opts.UseAgent)
	if err != nil {
		return nil, err
	}
	hostKeys, err := HostKeyCallback(d.opts.KnownHosts, d.opts.InsecureHostKey, d.opts.FileSystem)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         d.opts.ReadyTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.ReadyTimeout)
	defer cancel()

	addr := net.JoinHostPort(target.Host, strconv.Itoa(port))
	conn, err := d.opts.SSHDialer.Dial(ctx, "tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	return newClient(conn, d.opts.Clock, d.opts.KeepaliveInterval), nil
}

// Client is one live SSH connection.
type Client struct {
	conn  *ssh.Client
	clock ports.Clock

	mu         sync.Mutex
	sftpClient *sftp.Client

	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *ssh.Client, clock ports.Clock, keepalive time.Duration) *Client {
	c := &Client{
		conn:  conn,
		clock: clock,
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go func() {
		err := conn.Wait()
		if err != nil {
			slog.Debug("ssh connection ended", slog.String("error", err.Error()))
		}
		close(c.done)
	}()
	if keepalive > 0 {
		go c.keepalive(keepalive)
	}
	return c
}

func (c *Client) keepalive(interval time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.done:
			return
		case <-ticker.C():
			if _, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				slog.Debug("keepalive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// OpenShell opens the interactive PTY shell.
func (c *Client) OpenShell(opts ports.ShellOptions) (ports.ShellChannel, error) {
	return openShell(c.conn, opts)
}

// Run executes command on its own exec channel and returns stdout.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	result := make(chan error, 1)
	go func() { result <- session.Run(command) }()

	select {
	case err := <-result:
		if err != nil {
			return stdout.String(), fmt.Errorf("run %q: %w", command, err)
		}
		return stdout.String(), nil
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	}
}

// WorkingDirectory asks the SFTP subsystem for the login directory.
func (c *Client) WorkingDirectory() (string, error) {
	c.mu.Lock()
	if c.sftpClient == nil {
		client, err := sftp.NewClient(c.conn)
		if err != nil {
			c.mu.Unlock()
			return "", fmt.Errorf("sftp: %w", err)
		}
		c.sftpClient = client
	}
	client := c.sftpClient
	c.mu.Unlock()

	return client.Getwd()
}

// Done is closed when the connection terminates.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the SFTP client and the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		if c.sftpClient != nil {
			c.sftpClient.Close()
			c.sftpClient = nil
		}
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

var (
	_ ports.TransportDialer = (*Dialer)(nil)
	_ ports.Transport       = (*Client)(nil)
)
