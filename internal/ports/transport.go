package ports

import (
	"context"
	"io"
)

// Credentials is the resolved secret material for one connection attempt.
// Exactly one of Password or PrivateKey is set.
type Credentials struct {
	Password      string
	PrivateKey    []byte
	KeyPassphrase string
}

// Target describes the remote endpoint of a tab.
type Target struct {
	Host        string
	Port        int
	User        string
	Credentials Credentials
}

// TransportDialer opens authenticated transports.
type TransportDialer interface {
	// Dial connects and authenticates. It returns once the transport is ready.
	Dial(ctx context.Context, target Target) (Transport, error)
}

// Transport is one authenticated connection to a remote host.
type Transport interface {
	// OpenShell opens the interactive PTY shell channel.
	OpenShell(opts ShellOptions) (ShellChannel, error)

	// Run executes command on a separate exec channel and returns its stdout.
	Run(ctx context.Context, command string) (string, error)

	// WorkingDirectory reports the remote login directory.
	WorkingDirectory() (string, error)

	// Done is closed once the transport has terminated for any reason.
	Done() <-chan struct{}

	// Close closes the transport. Safe to call more than once.
	Close() error
}

// ShellOptions configures the PTY requested for a shell channel.
type ShellOptions struct {
	Term string
	Cols int
	Rows int
}

// ShellChannel is the interactive shell stream of a tab.
// Stdout and Stderr return io.EOF once the channel closes.
type ShellChannel interface {
	io.Writer
	Stdout() io.Reader
	Stderr() io.Reader
	Resize(cols, rows int) error
	Close() error
}
