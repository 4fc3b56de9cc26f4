package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/acolita/shelltabs/internal/config"
	"github.com/acolita/shelltabs/internal/mcp"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(ctx context.Context, root *rootOptions) error {
	cfg := root.config
	a := newApp(cfg, shellOptions(cfg))
	defer a.close()

	slog.Info("starting shelltabs",
		slog.String("version", Version),
		slog.Int("servers", len(cfg.Servers)),
		slog.Bool("assist", a.assistant != nil),
	)

	opts := []mcp.ServerOption{mcp.WithCatalog(a.catalog)}
	if a.assistant != nil {
		opts = append(opts, mcp.WithGenerator(a.assistant))
	}
	server := mcp.NewServer(a.registry, cfg, Version, opts...)
	a.sinks.Add(server)

	if root.configPath != "" {
		watcher, err := config.NewWatcher(root.configPath, func(newCfg *config.Config) {
			root.apply(newCfg)
			server.UpdateConfig(newCfg)
		})
		if err != nil {
			slog.Warn("config hot-reload disabled", slog.String("error", err.Error()))
		} else {
			defer watcher.Close()
			slog.Info("config hot-reload enabled", slog.String("path", root.configPath))
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case <-ctx.Done():
		slog.Info("received shutdown signal")
		return nil
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", slog.String("error", err.Error()))
		}
		return err
	}
}
