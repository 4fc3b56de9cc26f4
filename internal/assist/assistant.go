package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/acolita/shelltabs/internal/adapters/realclock"
	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/nlcache"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/probe"
)

const (
	generateSystemPrompt = "You are a helpful assistant that translates natural language queries into shell commands. " +
		"Provide only the shell command(s) without any explanation or conversational text. " +
		"If multiple commands are needed, chain them with '&&' or ';' so they run as a single line."

	diagnoseSystemPrompt = "You are an assistant that analyzes shell command errors. Given the command, its output " +
		"and exit code, explain the error and suggest a solution. Be concise and helpful."

	// maxDiagnosisOutput bounds the command output sent for diagnosis.
	maxDiagnosisOutput = 2000
)

// EnvironmentSource reports what is known about a tab's remote host.
type EnvironmentSource interface {
	Environment(tabID string) (probe.Environment, bool)
}

// Assistant generates commands through the result cache and diagnoses failed
// commands, publishing progress as tab events.
type Assistant struct {
	client     *Client
	secrets    ports.SecretStore
	keyService string
	keyAccount string
	cache      *nlcache.Cache
	envs       EnvironmentSource
	sink       events.Sink
	clock      ports.Clock
	timeout    time.Duration
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithAPIKeyRef sets where the API key lives in the secret store.
func WithAPIKeyRef(service, account string) Option {
	return func(a *Assistant) {
		a.keyService = service
		a.keyAccount = account
	}
}

// WithCache sets the result cache consulted before generating.
func WithCache(c *nlcache.Cache) Option {
	return func(a *Assistant) { a.cache = c }
}

// WithEnvironments sets the source of per-tab OS information.
func WithEnvironments(src EnvironmentSource) Option {
	return func(a *Assistant) { a.envs = src }
}

// WithSink sets where events are published.
func WithSink(s events.Sink) Option {
	return func(a *Assistant) { a.sink = s }
}

// WithClock sets the clock used for event timestamps.
func WithClock(c ports.Clock) Option {
	return func(a *Assistant) { a.clock = c }
}

// WithTimeout bounds every API call.
func WithTimeout(d time.Duration) Option {
	return func(a *Assistant) { a.timeout = d }
}

// New returns an Assistant using client and the API key in secrets.
func New(client *Client, secrets ports.SecretStore, opts ...Option) *Assistant {
	a := &Assistant{
		client:     client,
		secrets:    secrets,
		keyService: "shelltabs-apikey",
		keyAccount: "user-api-key",
		sink:       events.Discard,
		clock:      realclock.New(),
		timeout:    2 * time.Minute,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetAPIKey stores the API key.
func (a *Assistant) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	return a.secrets.Set(a.keyService, a.keyAccount, key)
}

// ClearAPIKey removes the stored API key.
func (a *Assistant) ClearAPIKey() error {
	return a.secrets.Delete(a.keyService, a.keyAccount)
}

// HasAPIKey reports whether an API key is stored.
func (a *Assistant) HasAPIKey() bool {
	key, err := a.apiKey()
	return err == nil && key != ""
}

func (a *Assistant) apiKey() (string, error) {
	key, found, err := a.secrets.Get(a.keyService, a.keyAccount)
	if err != nil {
		return "", fmt.Errorf("read API key: %w", err)
	}
	if !found || key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// Generation is the result of GenerateCommand.
type Generation struct {
	Command string `json:"command"`
	Cached  bool   `json:"cached"`
}

// GenerateCommand turns query into a shell command for tabID. Cached answers
// skip the API entirely. Fragments are published as commandChunk events as
// they stream in, followed by commandReady or commandError.
func (a *Assistant) GenerateCommand(ctx context.Context, tabID, query string) (Generation, error) {
	log := slog.With(slog.String("tab_id", tabID))
	if strings.TrimSpace(query) == "" {
		return Generation{}, a.commandError(tabID, fmt.Errorf("empty query"))
	}

	if a.cache != nil {
		if command, ok := a.cache.Lookup(query); ok {
			log.Debug("command cache hit", slog.String("query", nlcache.Normalize(query)))
			a.emit(events.Event{Type: events.CommandChunk, TabID: tabID, Data: command})
			a.emit(events.Event{Type: events.CommandReady, TabID: tabID, Command: command, Cached: true})
			return Generation{Command: command, Cached: true}, nil
		}
	}

	key, err := a.apiKey()
	if err != nil {
		return Generation{}, a.commandError(tabID, err)
	}

	system := generateSystemPrompt
	if a.envs != nil {
		if env, ok := a.envs.Environment(tabID); ok && env.OSFamily.Known() {
			system += fmt.Sprintf(" The target operating system is %s.", env.OSFamily)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.client.Stream(ctx, key, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: query},
	}, func(delta string) {
		a.emit(events.Event{Type: events.CommandChunk, TabID: tabID, Data: delta})
	})
	if err != nil {
		return Generation{}, a.commandError(tabID, fmt.Errorf("generate command: %w", err))
	}

	command := strings.TrimSpace(text)
	if command != "" && a.cache != nil {
		a.cache.Store(query, command)
	}
	log.Info("command generated", slog.Int("length", len(command)))
	a.emit(events.Event{Type: events.CommandReady, TabID: tabID, Command: command})
	return Generation{Command: command}, nil
}

func (a *Assistant) commandError(tabID string, err error) error {
	slog.Warn("command generation failed", slog.String("tab_id", tabID), slog.String("error", err.Error()))
	a.emit(events.Event{Type: events.CommandError, TabID: tabID, Message: err.Error()})
	return err
}

// Diagnose explains why command failed. Progress is published as
// diagnosisChunk events followed by diagnosisReady or diagnosisError.
// Successful commands are ignored.
func (a *Assistant) Diagnose(ctx context.Context, tabID, command, output string, exitCode int) {
	if exitCode == 0 {
		return
	}
	log := slog.With(slog.String("tab_id", tabID), slog.Int("exit_code", exitCode))

	key, err := a.apiKey()
	if err != nil {
		a.diagnosisError(tabID, fmt.Errorf("cannot analyze error: %w", err))
		return
	}

	output = truncate(output, maxDiagnosisOutput)
	prompt := fmt.Sprintf("Command: %s\nExit Code: %d\nOutput:\n%s", command, exitCode, output)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.client.Stream(ctx, key, []Message{
		{Role: "system", Content: diagnoseSystemPrompt},
		{Role: "user", Content: prompt},
	}, func(delta string) {
		a.emit(events.Event{Type: events.DiagnosisChunk, TabID: tabID, Data: delta})
	})
	if err != nil {
		a.diagnosisError(tabID, fmt.Errorf("diagnosis failed: %w", err))
		return
	}
	log.Info("diagnosis ready")
	a.emit(events.Event{
		Type:     events.DiagnosisReady,
		TabID:    tabID,
		Command:  command,
		ExitCode: &exitCode,
		Message:  strings.TrimSpace(text),
	})
}

func (a *Assistant) diagnosisError(tabID string, err error) {
	slog.Warn("diagnosis failed", slog.String("tab_id", tabID), slog.String("error", err.Error()))
	a.emit(events.Event{Type: events.DiagnosisError, TabID: tabID, Message: err.Error()})
}

func (a *Assistant) emit(e events.Event) {
	e.Time = a.clock.Now()
	a.sink.Publish(e)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
