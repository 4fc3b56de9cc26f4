// Package mcp exposes the tab registry as an MCP server on stdio.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/acolita/shelltabs/internal/assist"
	"github.com/acolita/shelltabs/internal/config"
	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/probe"
	"github.com/acolita/shelltabs/internal/session"
	"github.com/acolita/shelltabs/internal/templates"
	"github.com/mark3labs/mcp-go/server"
)

// EventMethod is the notification method carrying tab events.
const EventMethod = "notifications/shelltabs/event"

// tabRegistry is the part of session.Registry the tools drive.
type tabRegistry interface {
	Connect(ctx context.Context, tabID string, p session.Params) error
	Disconnect(tabID string)
	Write(tabID string, data []byte)
	Resize(tabID string, cols, rows int)
	Execute(ctx context.Context, tabID, command string) (*session.Pending, error)
	Environment(tabID string) (probe.Environment, bool)
	Info(tabID string) (session.TabInfo, bool)
	List() []session.TabInfo
}

// commandGenerator turns a natural language request into a shell command.
type commandGenerator interface {
	GenerateCommand(ctx context.Context, tabID, query string) (assist.Generation, error)
}

// notifier delivers notifications to connected MCP clients.
type notifier interface {
	SendNotificationToAllClients(method string, params map[string]any)
}

var (
	_ tabRegistry      = (*session.Registry)(nil)
	_ commandGenerator = (*assist.Assistant)(nil)
	_ notifier         = (*server.MCPServer)(nil)
)

// Server wraps the MCP server implementation.
type Server struct {
	mcpServer *server.MCPServer
	notify    notifier

	tabs      tabRegistry
	generator commandGenerator
	catalog   *templates.Catalog

	mu     sync.RWMutex
	config *config.Config
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithGenerator enables the command_generate tool.
func WithGenerator(g commandGenerator) ServerOption {
	return func(s *Server) {
		s.generator = g
	}
}

// WithCatalog sets the task template catalog.
func WithCatalog(c *templates.Catalog) ServerOption {
	return func(s *Server) {
		s.catalog = c
	}
}

func withNotifier(n notifier) ServerOption {
	return func(s *Server) {
		s.notify = n
	}
}

// NewServer creates the MCP server for tabs.
func NewServer(tabs tabRegistry, cfg *config.Config, version string, opts ...ServerOption) *Server {
	mcpServer := server.NewMCPServer(
		"shelltabs",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		notify:    mcpServer,
		tabs:      tabs,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Run serves MCP on stdio until the client goes away.
func (s *Server) Run() error {
	slog.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// UpdateConfig swaps the configuration used for named server lookups and
// connect timeouts. Live tabs are not affected.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	slog.Debug("mcp server config updated", slog.Int("servers", len(cfg.Servers)))
}

func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Publish forwards a tab event to every connected client.
func (s *Server) Publish(e events.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	params, err := eventParams(e)
	if err != nil {
		slog.Warn("failed to encode event notification", slog.String("type", string(e.Type)), slog.String("error", err.Error()))
		return
	}
	s.notify.SendNotificationToAllClients(EventMethod, params)
}

func eventParams(e events.Event) (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

var _ events.Sink = (*Server)(nil)
