package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acolita/shelltabs/internal/config"
	"github.com/acolita/shelltabs/internal/framer"
	"github.com/acolita/shelltabs/internal/session"
	"github.com/acolita/shelltabs/internal/templates"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	descTabID = "The tab ID"

	errTabIDRequired = "tab_id is required"

	defaultExecTimeoutMs = 30000
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(tabConnectTool(), s.handleTabConnect)
	s.mcpServer.AddTool(tabDisconnectTool(), s.handleTabDisconnect)
	s.mcpServer.AddTool(tabWriteTool(), s.handleTabWrite)
	s.mcpServer.AddTool(tabResizeTool(), s.handleTabResize)
	s.mcpServer.AddTool(tabExecTool(), s.handleTabExec)
	s.mcpServer.AddTool(tabStatusTool(), s.handleTabStatus)
	s.mcpServer.AddTool(tabListTool(), s.handleTabList)
	s.mcpServer.AddTool(taskTemplatesTool(), s.handleTaskTemplates)
	s.mcpServer.AddTool(templateRenderTool(), s.handleTemplateRender)
	s.mcpServer.AddTool(commandGenerateTool(), s.handleCommandGenerate)
}

// Tool definitions

func tabConnectTool() mcp.Tool {
	return mcp.NewTool("tab_connect",
		mcp.WithDescription("Open an SSH session in a tab, replacing any session the tab already has"),
		mcp.WithString("tab_id",
			mcp.Required(),
			mcp.Description(descTabID),
		),
		mcp.WithString("server",
			mcp.Description("Name of a configured server profile; overrides the connection fields below"),
		),
		mcp.WithString("host",
			mcp.Description("SSH host"),
		),
		mcp.WithNumber("port",
			mcp.Description("SSH port (default: 22)"),
		),
		mcp.WithString("user",
			mcp.Description("SSH username"),
		),
		mcp.WithString("auth_type",
			mcp.Description("'password' or 'key'"),
			mcp.DefaultString(config.AuthPassword),
		),
		mcp.WithString("secret_ref",
			mcp.Description("Secret store account holding the password"),
		),
		mcp.WithString("key_path",
			mcp.Description("Private key file for key authentication"),
		),
		mcp.WithString("passphrase_ref",
			mcp.Description("Secret store account holding the key passphrase"),
		),
	)
}

func tabDisconnectTool() mcp.Tool {
	return mcp.NewTool("tab_disconnect",
		mcp.WithDescription("Close the tab's session"),
		mcp.WithString("tab_id",
			mcp.Required(),
			mcp.Description(descTabID),
		),
	)
}

func tabWriteTool() mcp.Tool {
	return mcp.NewTool("tab_write",
		mcp.WithDescription("Send raw keystrokes to the tab's shell"),
		mcp.WithString("tab_id",
			mcp.Required(),
			mcp.Description(descTabID),
		),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Bytes to write, e.g. \"ls\\r\" or \"\\u0003\" for Ctrl+C"),
		),
	)
}

func tabResizeTool() mcp.Tool {
	return mcp.NewTool("tab_resize",
		mcp.WithDescription("Change the tab's terminal size"),
		mcp.WithString("tab_id",
			mcp.Required(),
			mcp.Description(descTabID),
		),
		mcp.WithNumber("cols",
			mcp.Required(),
			mcp.Description("Columns"),
		),
		mcp.WithNumber("rows",
			mcp.Required(),
			mcp.Description("Rows"),
		),
	)
}

func tabExecTool() mcp.Tool {
	return mcp.NewTool("tab_exec",
		mcp.WithDescription("Run a command in the tab's shell and capture its output and exit code"),
		mcp.WithString("tab_id",
			mcp.Required(),
			mcp.Description(descTabID),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to execute"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("How long to wait for the result (default: 30000). The command keeps running after the wait ends."),
		),
	)
}

func tabStatusTool() mcp.Tool {
	return mcp.NewTool("tab_status",
		mcp.WithDescription("Show the tab's connection, shell and environment state"),
		mcp.WithString("tab_id",
			mcp.Required(),
			mcp.Description(descTabID),
		),
	)
}

func tabListTool() mcp.Tool {
	return mcp.NewTool("tab_list",
		mcp.WithDescription("List connected tabs"),
	)
}

func taskTemplatesTool() mcp.Tool {
	return mcp.NewTool("task_templates",
		mcp.WithDescription("List task templates, filtered to the tab's OS when tab_id is given"),
		mcp.WithString("tab_id",
			mcp.Description(descTabID),
		),
	)
}

func templateRenderTool() mcp.Tool {
	return mcp.NewTool("template_render",
		mcp.WithDescription("Fill a task template's placeholders and return the commands"),
		mcp.WithString("template_id",
			mcp.Required(),
			mcp.Description("The template ID"),
		),
		mcp.WithObject("values",
			mcp.Description("Placeholder values keyed by placeholder name"),
		),
	)
}

func commandGenerateTool() mcp.Tool {
	return mcp.NewTool("command_generate",
		mcp.WithDescription("Translate a natural language request into a shell command for the tab's OS"),
		mcp.WithString("tab_id",
			mcp.Required(),
			mcp.Description(descTabID),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What the command should do"),
		),
	)
}

// Tool handlers

func (s *Server) handleTabConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID := mcp.ParseString(req, "tab_id", "")
	if tabID == "" {
		return mcp.NewToolResultError(errTabIDRequired), nil
	}

	cfg := s.currentConfig()
	params, err := connectParams(req, cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if cfg.Connection.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Connection.ReadyTimeout)
		defer cancel()
	}

	slog.Info("connecting tab",
		slog.String("tab_id", tabID),
		slog.String("host", params.Host),
		slog.String("user", params.User),
	)

	if err := s.tabs.Connect(ctx, tabID, params); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, ok := s.tabs.Info(tabID)
	if !ok {
		return mcp.NewToolResultError("tab disconnected during setup"), nil
	}
	return jsonResult(info)
}

func connectParams(req mcp.CallToolRequest, cfg *config.Config) (session.Params, error) {
	if name := mcp.ParseString(req, "server", ""); name != "" {
		srv, ok := cfg.FindServer(name)
		if !ok {
			return session.Params{}, fmt.Errorf("unknown server %q", name)
		}
		return session.ParamsFromServer(srv), nil
	}

	p := session.Params{
		Host:          mcp.ParseString(req, "host", ""),
		Port:          mcp.ParseInt(req, "port", 22),
		User:          mcp.ParseString(req, "user", ""),
		AuthMode:      mcp.ParseString(req, "auth_type", config.AuthPassword),
		SecretRef:     mcp.ParseString(req, "secret_ref", ""),
		KeyPath:       mcp.ParseString(req, "key_path", ""),
		PassphraseRef: mcp.ParseString(req, "passphrase_ref", ""),
	}
	if p.Host == "" {
		return p, errors.New("host is required")
	}
	if p.User == "" {
		return p, errors.New("user is required")
	}
	return p, nil
}

func (s *Server) handleTabDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID := mcp.ParseString(req, "tab_id", "")
	if tabID == "" {
		return mcp.NewToolResultError(errTabIDRequired), nil
	}
	s.tabs.Disconnect(tabID)
	return mcp.NewToolResultText("Tab disconnected"), nil
}

func (s *Server) handleTabWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID := mcp.ParseString(req, "tab_id", "")
	data := mcp.ParseString(req, "data", "")
	if tabID == "" {
		return mcp.NewToolResultError(errTabIDRequired), nil
	}
	if data == "" {
		return mcp.NewToolResultError("data is required"), nil
	}
	if _, ok := s.tabs.Info(tabID); !ok {
		return mcp.NewToolResultError(notConnected(tabID)), nil
	}
	s.tabs.Write(tabID, []byte(data))
	return mcp.NewToolResultText(fmt.Sprintf("Wrote %d bytes", len(data))), nil
}

func (s *Server) handleTabResize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID := mcp.ParseString(req, "tab_id", "")
	cols := mcp.ParseInt(req, "cols", 0)
	rows := mcp.ParseInt(req, "rows", 0)
	if tabID == "" {
		return mcp.NewToolResultError(errTabIDRequired), nil
	}
	if cols <= 0 || rows <= 0 {
		return mcp.NewToolResultError("cols and rows must be positive"), nil
	}
	if _, ok := s.tabs.Info(tabID); !ok {
		return mcp.NewToolResultError(notConnected(tabID)), nil
	}
	s.tabs.Resize(tabID, cols, rows)
	return mcp.NewToolResultText(fmt.Sprintf("Resized to %dx%d", cols, rows)), nil
}

// execResult is the tab_exec response.
type execResult struct {
	Status   string `json:"status"`
	Command  string `json:"command"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) handleTabExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID := mcp.ParseString(req, "tab_id", "")
	command := mcp.ParseString(req, "command", "")
	timeoutMs := mcp.ParseInt(req, "timeout_ms", defaultExecTimeoutMs)
	if tabID == "" {
		return mcp.NewToolResultError(errTabIDRequired), nil
	}
	if command == "" {
		return mcp.NewToolResultError("command is required"), nil
	}
	if timeoutMs <= 0 {
		timeoutMs = defaultExecTimeoutMs
	}

	slog.Info("executing command",
		slog.String("tab_id", tabID),
		slog.String("command", command),
	)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	pending, err := s.tabs.Execute(ctx, tabID, command)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	outcome, err := pending.Wait(ctx)
	if err != nil {
		return jsonResult(execResult{
			Status:  "running",
			Command: command,
			Reason:  "no result yet; output keeps streaming as data events",
		})
	}
	return jsonResult(outcomeResult(outcome))
}

func outcomeResult(o framer.Outcome) execResult {
	r := execResult{Status: o.Kind.String(), Command: o.Command, Reason: o.Reason}
	if o.Kind == framer.Completed {
		code := o.ExitCode
		r.Output = o.Output
		r.ExitCode = &code
	}
	return r
}

func (s *Server) handleTabStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID := mcp.ParseString(req, "tab_id", "")
	if tabID == "" {
		return mcp.NewToolResultError(errTabIDRequired), nil
	}
	info, ok := s.tabs.Info(tabID)
	if !ok {
		return mcp.NewToolResultError(notConnected(tabID)), nil
	}
	return jsonResult(info)
}

func (s *Server) handleTabList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"tabs": s.tabs.List()})
}

func (s *Server) handleTaskTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.catalog == nil {
		return mcp.NewToolResultError("templates are not available"), nil
	}

	tabID := mcp.ParseString(req, "tab_id", "")
	if tabID == "" {
		return jsonResult(map[string]any{"templates": s.catalog.All()})
	}

	env, ok := s.tabs.Environment(tabID)
	if !ok {
		if _, connected := s.tabs.Info(tabID); connected {
			return mcp.NewToolResultError("environment of tab " + tabID + " is not known yet"), nil
		}
		return mcp.NewToolResultError(notConnected(tabID)), nil
	}
	list := s.catalog.ForOS(env.OSFamily)
	if list == nil {
		list = []templates.Template{}
	}
	return jsonResult(map[string]any{
		"os_family": env.OSFamily,
		"templates": list,
	})
}

func (s *Server) handleTemplateRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.catalog == nil {
		return mcp.NewToolResultError("templates are not available"), nil
	}

	id := mcp.ParseString(req, "template_id", "")
	if id == "" {
		return mcp.NewToolResultError("template_id is required"), nil
	}
	tmpl, ok := s.catalog.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown template %q", id)), nil
	}

	values, err := stringValues(req.GetArguments()["values"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	commands, err := tmpl.Render(values)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"template_id": id,
		"commands":    commands,
		"script":      templates.Script(commands),
	})
}

// stringValues converts the values argument to placeholder values. Numbers
// and booleans are formatted; nested values are rejected.
func stringValues(raw any) (map[string]string, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("values must be an object")
	}
	values := make(map[string]string, len(obj))
	for k, v := range obj {
		switch v := v.(type) {
		case string:
			values[k] = v
		case float64, bool, int, int64:
			values[k] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("value for %s must be a string", k)
		}
	}
	return values, nil
}

func (s *Server) handleCommandGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.generator == nil {
		return mcp.NewToolResultError("command generation is disabled"), nil
	}

	tabID := mcp.ParseString(req, "tab_id", "")
	query := mcp.ParseString(req, "query", "")
	if tabID == "" {
		return mcp.NewToolResultError(errTabIDRequired), nil
	}
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	gen, err := s.generator.GenerateCommand(ctx, tabID, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"command": gen.Command,
		"cached":  gen.Cached,
	})
}

func notConnected(tabID string) string {
	return fmt.Sprintf("tab %s is not connected", tabID)
}

// jsonResult creates a JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
