// Package session owns the live SSH tabs: connection lifecycle, raw terminal
// passthrough and marker-framed command execution on each tab's shell.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/acolita/shelltabs/internal/adapters/realclock"
	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/adapters/realrand"
	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/framer"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/probe"
)

// DefaultSecretService is the secret store service holding tab passwords.
const DefaultSecretService = "shelltabs"

// Diagnoser is told about commands that exited non-zero.
type Diagnoser interface {
	Diagnose(ctx context.Context, tabID, command, output string, exitCode int)
}

// Registry holds at most one live session per tab id. Every insert and
// removal goes through insert and remove.
type Registry struct {
	dialer        ports.TransportDialer
	secrets       ports.SecretStore
	secretService string
	fs            ports.FileSystem
	clock         ports.Clock
	markers       *framer.Generator
	rand          ports.Random
	sink          events.Sink
	diagnoser     Diagnoser
	shellOpts     ports.ShellOptions

	mu       sync.Mutex
	sessions map[string]*tabSession
	attempts map[string]uint64
	seq      uint64
	closed   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithSecretStore sets the store passwords and passphrases are read from.
func WithSecretStore(s ports.SecretStore) Option {
	return func(r *Registry) { r.secrets = s }
}

// WithSecretService sets the secret store service name.
func WithSecretService(service string) Option {
	return func(r *Registry) {
		if service != "" {
			r.secretService = service
		}
	}
}

// WithFileSystem sets the filesystem key files are read from.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(r *Registry) { r.fs = fs }
}

// WithClock sets the clock used for marker ids and timestamps.
func WithClock(c ports.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithRandom sets the randomness used for marker suffixes.
func WithRandom(rand ports.Random) Option {
	return func(r *Registry) { r.rand = rand }
}

// WithSink sets where events are published.
func WithSink(s events.Sink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithDiagnoser sets the collaborator told about failed commands.
func WithDiagnoser(d Diagnoser) Option {
	return func(r *Registry) { r.diagnoser = d }
}

// WithShellOptions sets the PTY requested for new shells.
func WithShellOptions(opts ports.ShellOptions) Option {
	return func(r *Registry) { r.shellOpts = opts }
}

// NewRegistry returns an empty registry dialing through dialer.
func NewRegistry(dialer ports.TransportDialer, opts ...Option) *Registry {
	r := &Registry{
		dialer:        dialer,
		secretService: DefaultSecretService,
		fs:            realfs.New(),
		clock:         realclock.New(),
		rand:          realrand.New(),
		sink:          events.Discard,
		shellOpts:     ports.ShellOptions{Term: "xterm-256color", Cols: 80, Rows: 24},
		sessions:      make(map[string]*tabSession),
		attempts:      make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.markers = framer.NewGenerator(r.clock, r.rand)
	return r
}

// Connect replaces whatever session tabID had with a new one. The previous
// session is fully torn down before dialing. Connect returns once the shell
// is ready; the environment probe may still be running.
func (r *Registry) Connect(ctx context.Context, tabID string, p Params) error {
	if prev := r.get(tabID); prev != nil {
		prev.teardown("replaced by a new connection", true)
	}
	gen, err := r.beginAttempt(tabID)
	if err != nil {
		return err
	}
	log := slog.With(slog.String("tab_id", tabID), slog.String("host", p.Host))

	endpoint := fmt.Sprintf("%s@%s:%d", p.User, p.Host, p.port())
	r.emit(events.Event{Type: events.Connecting, TabID: tabID, Message: endpoint})

	creds, err := r.resolveCredentials(p)
	if err != nil {
		return r.fail(tabID, err)
	}

	transport, err := r.dialer.Dial(ctx, ports.Target{
		Host:        p.Host,
		Port:        p.port(),
		User:        p.User,
		Credentials: creds,
	})
	if err != nil {
		return r.fail(tabID, fmt.Errorf("%w: %v", ErrConnection, err))
	}

	ts := newTabSession(r, tabID, gen, p, transport)
	prev, ok := r.insert(ts)
	if !ok {
		log.Debug("discarding superseded connection")
		transport.Close()
		return ErrSuperseded
	}
	if prev != nil {
		prev.teardown("replaced by a new connection", true)
	}
	log.Info("connected")
	r.emit(events.Event{Type: events.Connected, TabID: tabID})

	go ts.watchTransport()
	go ts.runProbe()

	if err := ts.openShell(r.shellOpts); err != nil {
		if err == ErrSuperseded {
			return err
		}
		err = fmt.Errorf("%w: %v", ErrShell, err)
		r.emit(events.Event{Type: events.Error, TabID: tabID, Message: err.Error()})
		ts.teardown(err.Error(), false)
		return err
	}
	log.Info("shell ready")
	r.emit(events.Event{Type: events.ShellReady, TabID: tabID, Message: endpoint})
	return nil
}

// fail reports a setup error for a tab that never made it into the registry.
func (r *Registry) fail(tabID string, err error) error {
	slog.Warn("connect failed", slog.String("tab_id", tabID), slog.String("error", err.Error()))
	r.emit(events.Event{Type: events.Error, TabID: tabID, Message: err.Error()})
	return err
}

// Disconnect tears down tabID. It always succeeds and is a no-op for
// unknown tabs. An in-flight connect for tabID is abandoned.
func (r *Registry) Disconnect(tabID string) {
	r.mu.Lock()
	r.seq++
	r.attempts[tabID] = r.seq
	r.mu.Unlock()

	if ts := r.get(tabID); ts != nil {
		ts.teardown("disconnected", true)
	}
}

// Write forwards raw input to the tab's shell. Input for unknown or closed
// tabs is dropped.
func (r *Registry) Write(tabID string, data []byte) {
	ts := r.get(tabID)
	if ts == nil {
		return
	}
	shell := ts.currentShell()
	if shell == nil {
		return
	}
	if _, err := shell.Write(data); err != nil {
		slog.Debug("dropped input", slog.String("tab_id", tabID), slog.String("error", err.Error()))
	}
}

// Resize forwards a terminal geometry change. It is a no-op for unknown tabs.
func (r *Registry) Resize(tabID string, cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	ts := r.get(tabID)
	if ts == nil {
		return
	}
	shell := ts.currentShell()
	if shell == nil {
		return
	}
	if err := shell.Resize(cols, rows); err != nil {
		slog.Debug("resize ignored", slog.String("tab_id", tabID), slog.String("error", err.Error()))
	}
}

// Execute runs command inside the tab's interactive shell and returns a
// handle on its outcome. It waits for the environment probe first. A tab
// accepts one command at a time; a second one fails with ErrCaptureBusy.
func (r *Registry) Execute(ctx context.Context, tabID, command string) (*Pending, error) {
	ts := r.get(tabID)
	if ts == nil {
		return nil, ErrNotConnected
	}
	return ts.execute(ctx, command)
}

// Environment returns the probed environment of tabID. ok is false until the
// probe has finished.
func (r *Registry) Environment(tabID string) (probe.Environment, bool) {
	ts := r.get(tabID)
	if ts == nil {
		return probe.Environment{}, false
	}
	return ts.environment()
}

// TabInfo is a snapshot of one live tab.
type TabInfo struct {
	TabID       string            `json:"tab_id"`
	Host        string            `json:"host"`
	Port        int               `json:"port"`
	User        string            `json:"user"`
	ConnectedAt time.Time         `json:"connected_at"`
	ShellReady  bool              `json:"shell_ready"`
	Busy        bool              `json:"busy"`
	Environment probe.Environment `json:"environment"`
}

// Info returns a snapshot of tabID.
func (r *Registry) Info(tabID string) (TabInfo, bool) {
	ts := r.get(tabID)
	if ts == nil {
		return TabInfo{}, false
	}
	return ts.info(), true
}

// List returns snapshots of every live tab ordered by tab id.
func (r *Registry) List() []TabInfo {
	r.mu.Lock()
	tabs := make([]*tabSession, 0, len(r.sessions))
	for _, ts := range r.sessions {
		tabs = append(tabs, ts)
	}
	r.mu.Unlock()

	infos := make([]TabInfo, 0, len(tabs))
	for _, ts := range tabs {
		infos = append(infos, ts.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].TabID < infos[j].TabID })
	return infos
}

// Connected reports whether tabID has a live session.
func (r *Registry) Connected(tabID string) bool {
	return r.get(tabID) != nil
}

// Shutdown tears down every tab and rejects further connects.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	tabs := make([]*tabSession, 0, len(r.sessions))
	for _, ts := range r.sessions {
		tabs = append(tabs, ts)
	}
	r.mu.Unlock()

	for _, ts := range tabs {
		ts.teardown("shutting down", true)
	}
}

func (r *Registry) beginAttempt(tabID string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	r.seq++
	r.attempts[tabID] = r.seq
	return r.seq, nil
}

// insert stores ts if its connect attempt is still the latest one for the
// tab. It returns any session it displaced.
func (r *Registry) insert(ts *tabSession) (*tabSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.attempts[ts.id] != ts.gen {
		return nil, false
	}
	prev := r.sessions[ts.id]
	r.sessions[ts.id] = ts
	return prev, true
}

// remove deletes ts unless a newer session already took its slot.
func (r *Registry) remove(ts *tabSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[ts.id] == ts {
		delete(r.sessions, ts.id)
	}
	if r.attempts[ts.id] == ts.gen {
		delete(r.attempts, ts.id)
	}
}

func (r *Registry) get(tabID string) *tabSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[tabID]
}

func (r *Registry) emit(e events.Event) {
	if e.Time.IsZero() {
		e.Time = r.clock.Now()
	}
	r.sink.Publish(e)
}
