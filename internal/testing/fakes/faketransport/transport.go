// Package faketransport provides in-memory transports for session tests.
package faketransport

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/acolita/shelltabs/internal/ports"
)

// ErrClosed is returned by writes to a closed shell.
var ErrClosed = errors.New("faketransport: closed")

// Dialer records targets and hands out transports.
type Dialer struct {
	mu         sync.Mutex
	DialFunc   func(ctx context.Context, target ports.Target) (ports.Transport, error)
	targets    []ports.Target
	transports []*Transport
}

// NewDialer returns a Dialer whose every Dial succeeds with a fresh Transport.
func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Dial(ctx context.Context, target ports.Target) (ports.Transport, error) {
	d.mu.Lock()
	// Credentials are copied because the caller wipes key material.
	t := target
	t.Credentials.PrivateKey = append([]byte(nil), target.Credentials.PrivateKey...)
	d.targets = append(d.targets, t)
	fn := d.DialFunc
	d.mu.Unlock()

	if fn != nil {
		tr, err := fn(ctx, target)
		if ft, ok := tr.(*Transport); ok && err == nil {
			d.track(ft)
		}
		return tr, err
	}
	tr := New()
	d.track(tr)
	return tr, nil
}

func (d *Dialer) track(t *Transport) {
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
}

// SetError makes every Dial fail with err.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	d.DialFunc = func(context.Context, ports.Target) (ports.Transport, error) { return nil, err }
	d.mu.Unlock()
}

// Targets returns every target dialed so far.
func (d *Dialer) Targets() []ports.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ports.Target(nil), d.targets...)
}

// Transports returns every transport handed out.
func (d *Dialer) Transports() []*Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Transport(nil), d.transports...)
}

// Last returns the most recent transport, or nil.
func (d *Dialer) Last() *Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// Transport is a scripted ports.Transport.
type Transport struct {
	mu sync.Mutex

	// RunOutput maps commands to the stdout Run returns. Unknown commands
	// return an empty string.
	RunOutput map[string]string
	RunErr    error
	Wd        string
	WdErr     error
	ShellErr  error

	runGate chan struct{}
	runs    []string
	shells  []*Shell
	opened  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

// New returns a healthy transport.
func New() *Transport {
	return &Transport{
		RunOutput: map[string]string{"uname -a": "Linux fake 6.1.0 #1 SMP x86_64 GNU/Linux\n"},
		Wd:        "/home/fake",
		opened:    make(chan struct{}, 16),
		done:      make(chan struct{}),
	}
}

// BlockRun makes Run wait until ReleaseRun is called.
func (t *Transport) BlockRun() {
	t.mu.Lock()
	t.runGate = make(chan struct{})
	t.mu.Unlock()
}

// ReleaseRun unblocks pending and future Run calls.
func (t *Transport) ReleaseRun() {
	t.mu.Lock()
	if t.runGate != nil {
		close(t.runGate)
		t.runGate = nil
	}
	t.mu.Unlock()
}

func (t *Transport) OpenShell(opts ports.ShellOptions) (ports.ShellChannel, error) {
	t.mu.Lock()
	if t.ShellErr != nil {
		err := t.ShellErr
		t.mu.Unlock()
		return nil, err
	}
	s := newShell(opts)
	t.shells = append(t.shells, s)
	t.mu.Unlock()

	select {
	case t.opened <- struct{}{}:
	default:
	}
	return s, nil
}

func (t *Transport) Run(ctx context.Context, command string) (string, error) {
	t.mu.Lock()
	t.runs = append(t.runs, command)
	gate := t.runGate
	out, err := t.RunOutput[command], t.RunErr
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.done:
			return "", ErrClosed
		}
	}
	return out, err
}

func (t *Transport) WorkingDirectory() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Wd, t.WdErr
}

func (t *Transport) Done() <-chan struct{} { return t.done }

// Close terminates the transport and hangs up every shell.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.terminate()
	return nil
}

// Drop simulates the connection failing underneath the session.
func (t *Transport) Drop() {
	t.terminate()
}

func (t *Transport) terminate() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		shells := append([]*Shell(nil), t.shells...)
		t.mu.Unlock()
		for _, s := range shells {
			s.Hangup()
		}
	})
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Runs returns the commands passed to Run.
func (t *Transport) Runs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.runs...)
}

// Shell returns the most recently opened shell, or nil.
func (t *Transport) Shell() *Shell {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.shells) == 0 {
		return nil
	}
	return t.shells[len(t.shells)-1]
}

// WaitShell waits for a shell to be opened.
func (t *Transport) WaitShell(timeout time.Duration) *Shell {
	if s := t.Shell(); s != nil {
		return s
	}
	select {
	case <-t.opened:
		return t.Shell()
	case <-time.After(timeout):
		return nil
	}
}

// Shell is an in-memory ports.ShellChannel. Output is injected with Emit and
// EmitErr; input is captured for inspection.
type Shell struct {
	opts ports.ShellOptions

	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	mu      sync.Mutex
	written strings.Builder
	sizes   [][2]int
	closed  bool
	changed chan struct{}
}

func newShell(opts ports.ShellOptions) *Shell {
	s := &Shell{opts: opts, changed: make(chan struct{}, 1)}
	s.stdoutR, s.stdoutW = io.Pipe()
	s.stderrR, s.stderrW = io.Pipe()
	return s
}

func (s *Shell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.written.Write(p)
	s.notify()
	return len(p), nil
}

func (s *Shell) Stdout() io.Reader { return s.stdoutR }
func (s *Shell) Stderr() io.Reader { return s.stderrR }

func (s *Shell) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sizes = append(s.sizes, [2]int{cols, rows})
	return nil
}

// Close marks the shell closed and ends both output streams.
func (s *Shell) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Hangup()
	return nil
}

// Hangup ends both output streams as if the remote side closed the channel.
func (s *Shell) Hangup() {
	s.stdoutW.Close()
	s.stderrW.Close()
}

// Emit writes data to stdout. It blocks until the reader consumes it.
func (s *Shell) Emit(data string) error {
	_, err := io.WriteString(s.stdoutW, data)
	return err
}

// EmitErr writes data to stderr.
func (s *Shell) EmitErr(data string) error {
	_, err := io.WriteString(s.stderrW, data)
	return err
}

// Written returns everything written to the shell.
func (s *Shell) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written.String()
}

// WaitFor waits until the written input contains substr.
func (s *Shell) WaitFor(substr string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if strings.Contains(s.Written(), substr) {
			return true
		}
		select {
		case <-s.changed:
		case <-deadline:
			return false
		}
	}
}

// Sizes returns every Resize request as {cols, rows}.
func (s *Shell) Sizes() [][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]int(nil), s.sizes...)
}

// Closed reports whether Close was called.
func (s *Shell) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Options returns the options the shell was opened with.
func (s *Shell) Options() ports.ShellOptions { return s.opts }

func (s *Shell) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

var (
	_ ports.TransportDialer = (*Dialer)(nil)
	_ ports.Transport       = (*Transport)(nil)
	_ ports.ShellChannel    = (*Shell)(nil)
)
