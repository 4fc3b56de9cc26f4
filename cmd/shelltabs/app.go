package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/acolita/shelltabs/internal/adapters/realclock"
	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/adapters/realrand"
	"github.com/acolita/shelltabs/internal/assist"
	"github.com/acolita/shelltabs/internal/config"
	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/nlcache"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/probe"
	"github.com/acolita/shelltabs/internal/recording"
	"github.com/acolita/shelltabs/internal/security"
	"github.com/acolita/shelltabs/internal/session"
	"github.com/acolita/shelltabs/internal/ssh"
	"github.com/acolita/shelltabs/internal/templates"
)

// app holds the long-lived components shared by the commands.
type app struct {
	cfg     *config.Config
	fs      ports.FileSystem
	clock   ports.Clock
	secrets *security.KeyringStore

	bus       *events.Bus
	sinks     *events.Fanout
	nats      *events.NATSSink
	recorder  *recording.Manager
	registry  *session.Registry
	cache     *nlcache.Cache
	assistant *assist.Assistant
	catalog   *templates.Catalog
}

// tabEnvironments lets the assistant read environments from a registry that
// is created after it.
type tabEnvironments struct {
	registry *session.Registry
}

func (t *tabEnvironments) Environment(tabID string) (probe.Environment, bool) {
	if t.registry == nil {
		return probe.Environment{}, false
	}
	return t.registry.Environment(tabID)
}

func shellOptions(cfg *config.Config) ports.ShellOptions {
	return ports.ShellOptions{
		Term: cfg.Connection.Term,
		Cols: cfg.Connection.Cols,
		Rows: cfg.Connection.Rows,
	}
}

// newApp wires the registry and its event sinks. shell overrides the PTY
// size from the configuration.
func newApp(cfg *config.Config, shell ports.ShellOptions) *app {
	a := &app{
		cfg:     cfg,
		fs:      realfs.New(),
		clock:   realclock.New(),
		secrets: security.NewKeyringStore(),
		bus:     events.NewBus(),
	}
	if !a.secrets.Available(cfg.Secrets.Service) {
		slog.Warn("system keyring unavailable, password authentication will fail",
			slog.String("service", cfg.Secrets.Service))
	}

	a.sinks = events.NewFanout(a.bus)
	if cfg.Events.NATSURL != "" {
		sink, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			slog.Warn("nats publishing disabled", slog.String("url", cfg.Events.NATSURL), slog.String("error", err.Error()))
		} else {
			a.nats = sink
			a.sinks.Add(sink)
		}
	}
	if cfg.Recording.Enabled {
		dir := cfg.Recording.Path
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "shelltabs", "recordings")
		}
		a.recorder = recording.NewManager(dir, shell, a.fs, a.clock)
		a.sinks.Add(a.recorder)
	}

	a.cache = newCache(cfg, a.fs, a.clock)

	envs := &tabEnvironments{}
	opts := []session.Option{
		session.WithSecretStore(a.secrets),
		session.WithSecretService(cfg.Secrets.Service),
		session.WithFileSystem(a.fs),
		session.WithClock(a.clock),
		session.WithRandom(realrand.New()),
		session.WithSink(a.sinks),
		session.WithShellOptions(shell),
	}
	if cfg.Assist.Enabled {
		client, err := assist.NewClient(nil, cfg.Assist.BaseURL, cfg.Assist.ChatPath, cfg.Assist.Model)
		if err != nil {
			slog.Warn("assist disabled", slog.String("error", err.Error()))
		} else {
			a.assistant = assist.New(client, a.secrets,
				assist.WithAPIKeyRef(cfg.Secrets.APIKeyService, cfg.Secrets.APIKeyAccount),
				assist.WithCache(a.cache),
				assist.WithEnvironments(envs),
				assist.WithSink(a.sinks),
				assist.WithClock(a.clock),
				assist.WithTimeout(cfg.Assist.Timeout),
			)
			if cfg.Assist.DiagnoseFailures {
				opts = append(opts, session.WithDiagnoser(a.assistant))
			}
		}
	}

	dialer := ssh.NewDialer(ssh.DialerOptions{
		ReadyTimeout:      cfg.Connection.ReadyTimeout,
		KeepaliveInterval: cfg.Connection.KeepaliveInterval,
		KnownHosts:        cfg.Connection.KnownHosts,
		InsecureHostKey:   cfg.Connection.InsecureHostKey,
		UseAgent:          cfg.Connection.UseAgent,
		Clock:             a.clock,
		FileSystem:        a.fs,
	})
	a.registry = session.NewRegistry(dialer, opts...)
	envs.registry = a.registry

	catalog, err := templates.Load(cfg.Templates.Paths, templates.WithFileSystem(a.fs))
	if err != nil {
		slog.Warn("user templates not loaded", slog.String("error", err.Error()))
		catalog, _ = templates.Load(nil)
	}
	a.catalog = catalog
	return a
}

func newCache(cfg *config.Config, fsys ports.FileSystem, clock ports.Clock) *nlcache.Cache {
	opts := []nlcache.Option{
		nlcache.WithFileSystem(fsys),
		nlcache.WithClock(clock),
		nlcache.WithMaxEntries(cfg.Cache.MaxEntries),
		nlcache.WithMaxAge(cfg.Cache.MaxAge),
	}
	if cfg.Cache.Path != "" {
		opts = append(opts, nlcache.WithPath(cfg.Cache.Path))
	}
	return nlcache.New(opts...)
}

// params resolves a configured server profile.
func (a *app) params(name string) (session.Params, error) {
	srv, ok := a.cfg.FindServer(name)
	if !ok {
		return session.Params{}, &unknownServerError{name: name}
	}
	return session.ParamsFromServer(srv), nil
}

func (a *app) close() {
	a.registry.Shutdown()
	if a.recorder != nil {
		a.recorder.CloseAll()
	}
	if a.nats != nil {
		a.nats.Close()
	}
}

type unknownServerError struct {
	name string
}

func (e *unknownServerError) Error() string {
	return "unknown server " + e.name + " (see servers in the config file)"
}
