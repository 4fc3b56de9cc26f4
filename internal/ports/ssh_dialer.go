package ports

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// SSHDialer abstracts raw SSH connection establishment for testing.
type SSHDialer interface {
	// Dial establishes an SSH connection to addr. Implementations must give up
	// when ctx is done.
	Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}
