package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/framer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type execFlags struct {
	timeout time.Duration
	explain bool
}

func newExecCmd(root *rootOptions) *cobra.Command {
	flags := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec <server> -- <command>",
		Short: "Run one command on a configured server and exit with its status",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd.Context(), root, flags, args[0], strings.Join(args[1:], " "), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "give up waiting after this long (default: wait for the command)")
	cmd.Flags().BoolVar(&flags.explain, "explain", false, "on failure, print the assistant's diagnosis")
	return cmd
}

func runExec(ctx context.Context, root *rootOptions, flags *execFlags, server, command string, stdout, stderr io.Writer) error {
	cfg := root.config
	a := newApp(cfg, shellOptions(cfg))
	defer a.close()

	params, err := a.params(server)
	if err != nil {
		return err
	}

	tabID := uuid.NewString()
	stream, cancel := a.bus.Subscribe(tabID)
	defer cancel()
	diagnoses := diagnosisEvents(stream)

	if ctx == nil {
		ctx = context.Background()
	}
	connectCtx, stopConnect := context.WithTimeout(ctx, cfg.Connection.ReadyTimeout)
	err = a.registry.Connect(connectCtx, tabID, params)
	stopConnect()
	if err != nil {
		return err
	}
	defer a.registry.Disconnect(tabID)

	if flags.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, flags.timeout)
		defer stop()
	}
	pending, err := a.registry.Execute(ctx, tabID, command)
	if err != nil {
		return err
	}
	outcome, err := pending.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for %q: %w", command, err)
	}

	if err := outcomeError(outcome); err != nil {
		return err
	}

	if outcome.Output != "" {
		fmt.Fprintln(stdout, outcome.Output)
	}
	if outcome.ExitCode == 0 {
		return nil
	}

	if flags.explain {
		explain(diagnoses, a.assistant != nil && cfg.Assist.DiagnoseFailures, cfg.Assist.Timeout, stderr)
	}
	return &exitError{code: outcome.ExitCode}
}

// outcomeError reports a capture that ended without the command's status.
func outcomeError(o framer.Outcome) error {
	if o.Kind != framer.Completed {
		return fmt.Errorf("%s %q: %s", o.Kind, o.Command, o.Reason)
	}
	return nil
}

// diagnosisEvents drains stream so output does not fill the subscription and
// passes on the first diagnosis result.
func diagnosisEvents(stream <-chan events.Event) <-chan events.Event {
	out := make(chan events.Event, 1)
	go func() {
		for e := range stream {
			if e.Type == events.DiagnosisReady || e.Type == events.DiagnosisError {
				select {
				case out <- e:
				default:
				}
			}
		}
		close(out)
	}()
	return out
}

// explain prints the diagnosis the registry requested for the failed command.
func explain(diagnoses <-chan events.Event, enabled bool, timeout time.Duration, w io.Writer) {
	if !enabled {
		fmt.Fprintln(w, "diagnosis unavailable: assist or diagnose_failures is disabled")
		return
	}
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-diagnoses:
			if !ok {
				return
			}
			switch e.Type {
			case events.DiagnosisReady:
				fmt.Fprintf(w, "\n%s\n", e.Message)
				return
			case events.DiagnosisError:
				fmt.Fprintf(w, "diagnosis failed: %s\n", e.Message)
				return
			}
		case <-deadline:
			fmt.Fprintln(w, "diagnosis timed out")
			return
		}
	}
}
