// Package fakesshdialer provides a fake SSH dialer for testing.
package fakesshdialer

import (
	"context"
	"errors"
	"sync"

	"github.com/acolita/shelltabs/internal/ports"
	"golang.org/x/crypto/ssh"
)

// Dialer records calls and delegates to DialFunc.
type Dialer struct {
	mu       sync.Mutex
	DialFunc func(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
	calls    []DialCall
}

// DialCall records a call to Dial.
type DialCall struct {
	Network string
	Addr    string
	Config  *ssh.ClientConfig
}

// New creates a Dialer that fails every call until configured.
func New() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Dial(ctx context.Context, network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d.mu.Lock()
	d.calls = append(d.calls, DialCall{Network: network, Addr: addr, Config: config})
	fn := d.DialFunc
	d.mu.Unlock()

	if fn == nil {
		return nil, errors.New("fakesshdialer: not configured")
	}
	return fn(ctx, network, addr, config)
}

// Calls returns all recorded Dial calls.
func (d *Dialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DialCall(nil), d.calls...)
}

// SetError makes every Dial fail with err.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	d.DialFunc = func(context.Context, string, string, *ssh.ClientConfig) (*ssh.Client, error) {
		return nil, err
	}
	d.mu.Unlock()
}

var _ ports.SSHDialer = (*Dialer)(nil)
