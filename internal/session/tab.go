package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/framer"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/probe"
)

const (
	readBufferSize = 32 * 1024
	chunkQueueSize = 64

	stderrPrefix = "\x1b[31m"
	stderrSuffix = "\x1b[0m"
)

// chunk is one read from the shell. stderr marks the error channel.
type chunk struct {
	data   string
	stderr bool
}

// tabSession is one connected tab. Its shell output is consumed by a single
// loop goroutine, so capture transitions of a tab never run concurrently.
type tabSession struct {
	id          string
	gen         uint64
	params      Params
	connectedAt time.Time
	reg         *Registry
	transport   ports.Transport

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	shell   ports.ShellChannel
	env     probe.Environment
	probed  bool
	capture framer.State
	pending *Pending

	probeDone  chan struct{}
	shellReady chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
}

func newTabSession(r *Registry, tabID string, gen uint64, p Params, t ports.Transport) *tabSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &tabSession{
		id:          tabID,
		gen:         gen,
		params:      p,
		connectedAt: r.clock.Now(),
		reg:         r,
		transport:   t,
		ctx:         ctx,
		cancel:      cancel,
		probeDone:   make(chan struct{}),
		shellReady:  make(chan struct{}),
		closed:      make(chan struct{}),
	}
}

func (ts *tabSession) log() *slog.Logger {
	return slog.With(slog.String("tab_id", ts.id))
}

func (ts *tabSession) isClosed() bool {
	select {
	case <-ts.closed:
		return true
	default:
		return false
	}
}

func (ts *tabSession) watchTransport() {
	select {
	case <-ts.transport.Done():
		ts.log().Info("connection closed by remote")
		ts.teardown("connection closed", true)
	case <-ts.closed:
	}
}

func (ts *tabSession) runProbe() {
	env := probe.Run(ts.ctx, ts.transport)

	ts.mu.Lock()
	ts.env = env
	ts.probed = true
	ts.mu.Unlock()
	close(ts.probeDone)

	if ts.isClosed() {
		return
	}
	ts.log().Debug("environment probed",
		slog.String("os_family", string(env.OSFamily)),
		slog.String("cwd", env.WorkingDirectory))
	ts.reg.emit(events.Event{
		Type:             events.EnvironmentUpdate,
		TabID:            ts.id,
		OSFamily:         string(env.OSFamily),
		Detail:           env.Detail,
		WorkingDirectory: env.WorkingDirectory,
	})
}

func (ts *tabSession) openShell(opts ports.ShellOptions) error {
	shell, err := ts.transport.OpenShell(opts)
	if err != nil {
		if ts.isClosed() {
			return ErrSuperseded
		}
		return err
	}

	ts.mu.Lock()
	if ts.isClosed() {
		ts.mu.Unlock()
		shell.Close()
		return ErrSuperseded
	}
	ts.shell = shell
	ts.mu.Unlock()

	chunks := make(chan chunk, chunkQueueSize)
	var readers sync.WaitGroup
	readers.Add(2)
	go ts.read(shell.Stdout(), false, chunks, &readers)
	go ts.read(shell.Stderr(), true, chunks, &readers)
	go func() {
		readers.Wait()
		close(chunks)
	}()
	go ts.loop(chunks)

	close(ts.shellReady)
	return nil
}

// read forwards r into chunks, holding back a trailing partial UTF-8
// sequence until the rest of it arrives.
func (ts *tabSession) read(r io.Reader, stderr bool, chunks chan<- chunk, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, readBufferSize)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			complete := validPrefix(data)
			carry = append([]byte(nil), data[complete:]...)
			if complete > 0 {
				chunks <- chunk{data: string(data[:complete]), stderr: stderr}
			}
		}
		if err != nil {
			if len(carry) > 0 {
				chunks <- chunk{data: string(carry), stderr: stderr}
			}
			if !errors.Is(err, io.EOF) {
				ts.log().Debug("shell read ended", slog.Bool("stderr", stderr), slog.String("error", err.Error()))
			}
			return
		}
	}
}

// validPrefix returns the length of data without an incomplete trailing
// UTF-8 sequence.
func validPrefix(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return len(data)
		}
		return i
	}
	return len(data)
}

// loop processes shell output in arrival order until both streams end.
func (ts *tabSession) loop(chunks <-chan chunk) {
	for c := range chunks {
		ts.handle(c)
	}
	ts.teardown("shell closed", true)
}

func (ts *tabSession) handle(c chunk) {
	if ts.isClosed() {
		return
	}
	display := c.data
	if c.stderr {
		display = stderrPrefix + c.data + stderrSuffix
	}
	ts.reg.emit(events.Event{Type: events.Data, TabID: ts.id, Data: display})

	ts.mu.Lock()
	if !ts.capture.Active {
		ts.mu.Unlock()
		return
	}
	next, outcome := ts.capture.Feed(c.data)
	ts.capture = next
	var p *Pending
	if outcome != nil {
		p = ts.pending
		ts.pending = nil
	}
	ts.mu.Unlock()

	if outcome != nil {
		ts.finish(*outcome, p)
	}
}

// finish publishes the outcome of a capture and releases its waiter.
func (ts *tabSession) finish(o framer.Outcome, p *Pending) {
	log := ts.log().With(slog.String("command", o.Command))
	switch o.Kind {
	case framer.Completed:
		log.Info("command completed", slog.Int("exit_code", o.ExitCode))
		code := o.ExitCode
		ts.reg.emit(events.Event{
			Type:     events.CommandCompleted,
			TabID:    ts.id,
			Command:  o.Command,
			Output:   o.Output,
			ExitCode: &code,
		})
		if o.ExitCode != 0 && ts.reg.diagnoser != nil {
			go ts.reg.diagnoser.Diagnose(context.Background(), ts.id, o.Command, o.Output, o.ExitCode)
		}
	default:
		log.Warn("capture aborted", slog.String("kind", o.Kind.String()), slog.String("reason", o.Reason))
		ts.reg.emit(events.Event{
			Type:    events.CaptureAborted,
			TabID:   ts.id,
			Command: o.Command,
			Reason:  o.Reason,
		})
	}
	if p != nil {
		p.resolve(o)
	}
}

// teardown closes the shell, then the transport, then drops the registry
// entry. Only the first call has any effect.
func (ts *tabSession) teardown(reason string, notify bool) {
	ts.closeOnce.Do(func() {
		close(ts.closed)
		ts.cancel()

		ts.mu.Lock()
		shell := ts.shell
		capture := ts.capture
		p := ts.pending
		ts.capture = framer.State{}
		ts.pending = nil
		ts.mu.Unlock()

		if shell != nil {
			if err := shell.Close(); err != nil {
				ts.log().Debug("close shell", slog.String("error", err.Error()))
			}
		}
		if err := ts.transport.Close(); err != nil {
			ts.log().Debug("close transport", slog.String("error", err.Error()))
		}
		ts.reg.remove(ts)

		if _, outcome := capture.Abort(framer.ReasonStreamClosed); outcome != nil {
			ts.finish(*outcome, p)
		}
		ts.log().Info("tab closed", slog.String("reason", reason))
		if notify {
			ts.reg.emit(events.Event{Type: events.Disconnected, TabID: ts.id, Message: reason})
		}
	})
}

func (ts *tabSession) currentShell() ports.ShellChannel {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.isClosed() {
		return nil
	}
	return ts.shell
}

func (ts *tabSession) environment() (probe.Environment, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.env, ts.probed
}

func (ts *tabSession) info() TabInfo {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return TabInfo{
		TabID:       ts.id,
		Host:        ts.params.Host,
		Port:        ts.params.port(),
		User:        ts.params.User,
		ConnectedAt: ts.connectedAt,
		ShellReady:  ts.shell != nil,
		Busy:        ts.capture.Active,
		Environment: ts.env,
	}
}
