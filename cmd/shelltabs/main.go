// shelltabs drives SSH shells in named tabs, over MCP or from the terminal.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/config"
	"github.com/acolita/shelltabs/internal/logging"
	"github.com/spf13/cobra"
)

// Version information - set at build time.
var (
	Version   = "0.3.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type rootOptions struct {
	configPath string
	debug      bool
	config     *config.Config
}

// load reads and validates the configuration and installs the logger.
func (r *rootOptions) load() error {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Sanitize)
	r.config = cfg
	return nil
}

// apply layers command line overrides on cfg.
func (r *rootOptions) apply(cfg *config.Config) {
	if r.debug {
		cfg.Logging.Level = "debug"
	}
}

// exitError carries the remote exit status of `shelltabs exec`.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("remote command exited with status %d", e.code)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "shelltabs",
		Short:         "SSH shells in tabs with command capture and assistance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultConfigPath(realfs.New()), "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return opts.load()
	}

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newAttachCmd(opts))
	rootCmd.AddCommand(newExecCmd(opts))
	rootCmd.AddCommand(newSecretCmd(opts))
	rootCmd.AddCommand(newAPIKeyCmd(opts))
	rootCmd.AddCommand(newCacheCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	slog.Debug("command failed", slog.String("error", err.Error()))
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shelltabs version %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}
