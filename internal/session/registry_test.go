package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acolita/shelltabs/internal/config"
	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/probe"
	"github.com/acolita/shelltabs/internal/testing/fakes/fakefs"
	"github.com/acolita/shelltabs/internal/testing/fakes/fakesecrets"
	"github.com/acolita/shelltabs/internal/testing/fakes/faketransport"
)

const waitTimeout = 2 * time.Second

var passwordParams = Params{
	Host:      "web1",
	User:      "ops",
	AuthMode:  config.AuthPassword,
	SecretRef: "web1-ops",
}

type harness struct {
	reg     *Registry
	dialer  *faketransport.Dialer
	events  *events.Recorder
	secrets *fakesecrets.Store
	fs      *fakefs.FS
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		dialer:  faketransport.NewDialer(),
		events:  events.NewRecorder(),
		secrets: fakesecrets.New(),
		fs:      fakefs.New(),
	}
	h.secrets.Set(DefaultSecretService, "web1-ops", "hunter2")
	base := []Option{WithSecretStore(h.secrets), WithFileSystem(h.fs), WithSink(h.events)}
	h.reg = NewRegistry(h.dialer, append(base, opts...)...)
	t.Cleanup(h.reg.Shutdown)
	return h
}

// connect connects tabID and returns its transport and shell.
func (h *harness) connect(t *testing.T, tabID string) (*faketransport.Transport, *faketransport.Shell) {
	t.Helper()
	if err := h.reg.Connect(context.Background(), tabID, passwordParams); err != nil {
		t.Fatalf("Connect(%s) error: %v", tabID, err)
	}
	tr := h.dialer.Last()
	shell := tr.WaitShell(waitTimeout)
	if shell == nil {
		t.Fatal("no shell opened")
	}
	return tr, shell
}

func (h *harness) waitEvent(t *testing.T, typ events.Type) events.Event {
	t.Helper()
	e, ok := h.events.WaitType(typ, waitTimeout)
	if !ok {
		t.Fatalf("no %s event; got %v", typ, eventTypes(h.events.Events()))
	}
	return e
}

func eventTypes(evs []events.Event) []events.Type {
	types := make([]events.Type, len(evs))
	for i, e := range evs {
		types[i] = e.Type
	}
	return types
}

func TestConnect_Password(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "t1")

	targets := h.dialer.Targets()
	if len(targets) != 1 {
		t.Fatalf("dialed %d times, want 1", len(targets))
	}
	got := targets[0]
	if got.Host != "web1" || got.Port != 22 || got.User != "ops" || got.Credentials.Password != "hunter2" {
		t.Errorf("target = %+v", got)
	}

	types := eventTypes(h.events.Events())
	want := []events.Type{events.Connecting, events.Connected}
	for i, typ := range want {
		if i >= len(types) || types[i] != typ {
			t.Fatalf("events = %v, want prefix %v", types, want)
		}
	}
	h.waitEvent(t, events.ShellReady)

	env := h.waitEvent(t, events.EnvironmentUpdate)
	if env.OSFamily != string(probe.Linux) || env.WorkingDirectory != "/home/fake" {
		t.Errorf("environment event = %+v", env)
	}
	if !h.reg.Connected("t1") {
		t.Error("Connected() = false after Connect")
	}
}

func TestConnect_ShellOptions(t *testing.T) {
	h := newHarness(t, WithShellOptions(ports.ShellOptions{Term: "xterm", Cols: 132, Rows: 50}))
	_, shell := h.connect(t, "t1")

	if got := shell.Options(); got.Term != "xterm" || got.Cols != 132 || got.Rows != 50 {
		t.Errorf("shell options = %+v", got)
	}
}

func TestConnect_SetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		setup   func(h *harness)
		wantErr error
	}{
		{
			name:    "missing secret reference",
			params:  Params{Host: "h", User: "u", AuthMode: config.AuthPassword},
			wantErr: ErrAuthSetup,
		},
		{
			name:    "secret not stored",
			params:  Params{Host: "h", User: "u", AuthMode: config.AuthPassword, SecretRef: "absent"},
			wantErr: ErrAuthSetup,
		},
		{
			name:    "secret store failure",
			params:  passwordParams,
			setup:   func(h *harness) { h.secrets.Err = errors.New("keyring locked") },
			wantErr: ErrAuthSetup,
		},
		{
			name:    "key file missing",
			params:  Params{Host: "h", User: "u", AuthMode: config.AuthKey, KeyPath: "~/.ssh/missing"},
			wantErr: ErrKeyNotFound,
		},
		{
			name:    "unsupported auth mode",
			params:  Params{Host: "h", User: "u", AuthMode: "kerberos"},
			wantErr: ErrAuthSetup,
		},
		{
			name:    "dial failure",
			params:  passwordParams,
			setup:   func(h *harness) { h.dialer.SetError(errors.New("connection refused")) },
			wantErr: ErrConnection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			err := h.reg.Connect(context.Background(), "t1", tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Connect() error = %v, want %v", err, tt.wantErr)
			}
			if h.reg.Connected("t1") {
				t.Error("tab registered after failed connect")
			}
			if n := len(h.events.OfType(events.Error)); n != 1 {
				t.Errorf("got %d error events, want 1", n)
			}
			if n := len(h.events.OfType(events.Disconnected)); n != 0 {
				t.Errorf("got %d disconnected events, want 0", n)
			}
		})
	}
}

func TestConnect_KeyAuth(t *testing.T) {
	h := newHarness(t)
	h.fs.AddFile("/home/test/.ssh/id_ed25519", []byte("PRIVATE KEY"), 0o600)
	h.secrets.Set(DefaultSecretService, "id-pass", "s3cret")

	err := h.reg.Connect(context.Background(), "t1", Params{
		Host:          "db1",
		Port:          2222,
		User:          "ops",
		AuthMode:      config.AuthKey,
		KeyPath:       "~/.ssh/id_ed25519",
		PassphraseRef: "id-pass",
	})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	creds := h.dialer.Targets()[0].Credentials
	if string(creds.PrivateKey) != "PRIVATE KEY" || creds.KeyPassphrase != "s3cret" || creds.Password != "" {
		t.Errorf("credentials = %+v", creds)
	}
	if port := h.dialer.Targets()[0].Port; port != 2222 {
		t.Errorf("port = %d, want 2222", port)
	}
}

func TestConnect_ShellFailure(t *testing.T) {
	h := newHarness(t)
	tr := faketransport.New()
	tr.ShellErr = errors.New("channel open rejected")
	h.dialer.DialFunc = func(context.Context, ports.Target) (ports.Transport, error) { return tr, nil }

	err := h.reg.Connect(context.Background(), "t1", passwordParams)
	if !errors.Is(err, ErrShell) {
		t.Fatalf("Connect() error = %v, want ErrShell", err)
	}
	if !tr.Closed() {
		t.Error("transport not closed after shell failure")
	}
	if h.reg.Connected("t1") {
		t.Error("tab registered after shell failure")
	}
	if n := len(h.events.OfType(events.Error)); n != 1 {
		t.Errorf("got %d error events, want 1", n)
	}
	if n := len(h.events.OfType(events.Disconnected)); n != 0 {
		t.Errorf("got %d disconnected events, want 0", n)
	}
}

func TestConnect_TwiceKeepsOneSession(t *testing.T) {
	h := newHarness(t)
	first, firstShell := h.connect(t, "t1")
	second, _ := h.connect(t, "t1")

	if !first.Closed() || !firstShell.Closed() {
		t.Error("predecessor not torn down")
	}
	if second.Closed() {
		t.Error("new transport closed")
	}
	if n := len(h.reg.List()); n != 1 {
		t.Errorf("List() has %d tabs, want 1", n)
	}
	if n := len(h.events.OfType(events.Disconnected)); n != 1 {
		t.Errorf("got %d disconnected events, want 1", n)
	}
}

func TestConnect_SupersededWhileDialing(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	gate := make(chan struct{})
	h.dialer.DialFunc = func(context.Context, ports.Target) (ports.Transport, error) {
		tr := faketransport.New()
		if calls.Add(1) == 1 {
			<-gate
		}
		return tr, nil
	}

	slow := make(chan error, 1)
	go func() { slow <- h.reg.Connect(context.Background(), "t1", passwordParams) }()
	deadline := time.Now().Add(waitTimeout)
	for calls.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := h.reg.Connect(context.Background(), "t1", passwordParams); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}
	close(gate)

	if err := <-slow; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("first Connect() error = %v, want ErrSuperseded", err)
	}
	transports := h.dialer.Transports()
	if len(transports) != 2 {
		t.Fatalf("got %d transports, want 2", len(transports))
	}
	winner, loser := transports[0], transports[1]
	if !loser.Closed() {
		t.Error("superseded transport not closed")
	}
	if winner.Closed() {
		t.Error("winning transport closed")
	}
	if !h.reg.Connected("t1") {
		t.Error("tab lost its live session")
	}
}

func TestDisconnect_DuringDialAbandonsAttempt(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	tr := faketransport.New()
	h.dialer.DialFunc = func(context.Context, ports.Target) (ports.Transport, error) {
		<-gate
		return tr, nil
	}

	done := make(chan error, 1)
	go func() { done <- h.reg.Connect(context.Background(), "t1", passwordParams) }()
	deadline := time.Now().Add(waitTimeout)
	for len(h.dialer.Targets()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	h.reg.Disconnect("t1")
	close(gate)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Connect() error = %v, want ErrSuperseded", err)
	}
	if !tr.Closed() || h.reg.Connected("t1") {
		t.Error("abandoned connection survived")
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	h := newHarness(t)
	tr, shell := h.connect(t, "t1")

	h.reg.Disconnect("t1")
	h.reg.Disconnect("t1")

	if !shell.Closed() || !tr.Closed() {
		t.Error("shell and transport should both be closed")
	}
	if h.reg.Connected("t1") {
		t.Error("tab still registered")
	}
	h.waitEvent(t, events.Disconnected)
	time.Sleep(20 * time.Millisecond)
	if n := len(h.events.OfType(events.Disconnected)); n != 1 {
		t.Errorf("got %d disconnected events, want 1", n)
	}

	h.reg.Disconnect("never-connected")
	h.reg.Write("t1", []byte("ls\n"))
	h.reg.Resize("t1", 100, 30)
}

func TestTransportDropTearsDown(t *testing.T) {
	h := newHarness(t)
	tr, shell := h.connect(t, "t1")

	tr.Drop()

	e := h.waitEvent(t, events.Disconnected)
	if e.TabID != "t1" {
		t.Errorf("disconnected event for %q", e.TabID)
	}
	if !shell.Closed() {
		t.Error("shell not closed on transport drop")
	}
	deadline := time.Now().Add(waitTimeout)
	for h.reg.Connected("t1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.reg.Connected("t1") {
		t.Error("tab still registered after drop")
	}
}

func TestShellHangupTearsDown(t *testing.T) {
	h := newHarness(t)
	tr, shell := h.connect(t, "t1")

	shell.Hangup()

	h.waitEvent(t, events.Disconnected)
	deadline := time.Now().Add(waitTimeout)
	for !tr.Closed() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !tr.Closed() {
		t.Error("transport not closed after shell hangup")
	}
}

func TestWriteAndResize(t *testing.T) {
	h := newHarness(t)
	_, shell := h.connect(t, "t1")

	h.reg.Write("t1", []byte("uptime\n"))
	if !shell.WaitFor("uptime\n", waitTimeout) {
		t.Errorf("shell input = %q", shell.Written())
	}

	h.reg.Resize("t1", 120, 40)
	h.reg.Resize("t1", 0, 40)
	h.reg.Resize("other", 80, 24)
	sizes := shell.Sizes()
	if len(sizes) != 1 || sizes[0] != [2]int{120, 40} {
		t.Errorf("sizes = %v, want [[120 40]]", sizes)
	}

	h.reg.Write("unknown", []byte("dropped"))
}

func TestDataPassthrough(t *testing.T) {
	h := newHarness(t)
	_, shell := h.connect(t, "t1")

	shell.Emit("$ ")
	shell.EmitErr("oops")

	got := map[string]bool{}
	deadline := time.Now().Add(waitTimeout)
	for len(got) < 2 && time.Now().Before(deadline) {
		for _, e := range h.events.OfType(events.Data) {
			got[e.Data] = true
		}
		time.Sleep(time.Millisecond)
	}
	if !got["$ "] {
		t.Error("stdout chunk not forwarded")
	}
	if !got["\x1b[31moops\x1b[0m"] {
		t.Errorf("stderr chunk not highlighted; data events: %v", got)
	}
}

func TestDataPassthrough_SplitRune(t *testing.T) {
	h := newHarness(t)
	_, shell := h.connect(t, "t1")

	shell.Emit("caf\xc3")
	shell.Emit("\xa9!")

	_, ok := h.events.Wait(waitTimeout, func(e events.Event) bool {
		return e.Type == events.Data && e.Data == "\xc3\xa9!"
	})
	if !ok {
		t.Fatalf("split rune not reassembled; events: %+v", h.events.OfType(events.Data))
	}
	for _, d := range h.events.OfType(events.Data) {
		if d.Data == "caf\xc3" {
			t.Error("partial rune forwarded")
		}
	}
}

func TestValidPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"caf\xc3\xa9", 5},
		{"caf\xc3", 3},
		{"\xe2\x82", 0},
		{"x\xe2\x82\xac", 4},
		{"\xf0\x9f\x98", 0},
		{"\xa9\xa9\xa9\xa9\xa9", 5},
	}
	for _, tt := range tests {
		if got := validPrefix([]byte(tt.in)); got != tt.want {
			t.Errorf("validPrefix(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestListAndInfo(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "b")
	h.connect(t, "a")

	list := h.reg.List()
	if len(list) != 2 || list[0].TabID != "a" || list[1].TabID != "b" {
		t.Fatalf("List() = %+v", list)
	}
	info, ok := h.reg.Info("a")
	if !ok || info.Host != "web1" || info.Port != 22 || !info.ShellReady {
		t.Errorf("Info() = %+v, %v", info, ok)
	}
	if _, ok := h.reg.Info("zzz"); ok {
		t.Error("Info() for unknown tab reported ok")
	}
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	trA, _ := h.connect(t, "a")
	trB, _ := h.connect(t, "b")

	h.reg.Shutdown()

	if !trA.Closed() || !trB.Closed() {
		t.Error("transports left open after Shutdown")
	}
	if n := len(h.reg.List()); n != 0 {
		t.Errorf("List() has %d tabs after Shutdown", n)
	}
	if err := h.reg.Connect(context.Background(), "c", passwordParams); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Shutdown = %v, want ErrClosed", err)
	}
}

func TestParamsFromServer(t *testing.T) {
	p := ParamsFromServer(config.ServerConfig{
		Name: "prod",
		Host: "10.0.0.5",
		Port: 2200,
		User: "deploy",
		Auth: config.AuthConfig{Type: config.AuthKey, KeyPath: "~/.ssh/prod", PassphraseRef: "prod-pass"},
	})
	if p.Host != "10.0.0.5" || p.Port != 2200 || p.User != "deploy" ||
		p.AuthMode != config.AuthKey || p.KeyPath != "~/.ssh/prod" || p.PassphraseRef != "prod-pass" {
		t.Errorf("ParamsFromServer() = %+v", p)
	}
}
