package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/acolita/shelltabs/internal/events"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// detachKey ends an attach session without sending anything to the remote
// shell (Ctrl+]).
const detachKey = 0x1d

func newAttachCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <server>",
		Short: "Open an interactive shell on a configured server (Ctrl+] detaches)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttach(cmd.Context(), root, args[0])
		},
	}
}

func runAttach(ctx context.Context, root *rootOptions, server string) error {
	cfg := root.config
	opts := shellOptions(cfg)
	if cols, rows, ok := termSize(); ok {
		opts.Cols, opts.Rows = cols, rows
	}
	a := newApp(cfg, opts)
	defer a.close()

	params, err := a.params(server)
	if err != nil {
		return err
	}

	tabID := uuid.NewString()
	screen := newTerminalSink(tabID, os.Stdout)
	a.sinks.Add(screen)

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

	restore, err := makeStdinRaw()
	if err != nil {
		return fmt.Errorf("raw terminal: %w", err)
	}
	defer restore()

	detached := make(chan struct{})
	go func() {
		defer close(detached)
		buf := make([]byte, 32*1024)
		for {
			n, rerr := os.Stdin.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				if i := bytes.IndexByte(chunk, detachKey); i >= 0 {
					if i > 0 {
						a.registry.Write(tabID, append([]byte(nil), chunk[:i]...))
					}
					return
				}
				a.registry.Write(tabID, append([]byte(nil), chunk...))
			}
			if rerr != nil {
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if cols, rows, ok := termSize(); ok {
				a.registry.Resize(tabID, cols, rows)
			}
		}
	}()

	select {
	case reason := <-screen.ended:
		restore()
		if reason != "" && reason != "disconnected" {
			fmt.Fprintf(os.Stderr, "\r\nconnection closed: %s\r\n", reason)
		}
		return nil
	case <-detached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminalSink writes one tab's output to w in publish order. Writes happen on
// the session's output loop, so a slow terminal slows the tab instead of
// losing bytes. The end of the session is reported once on ended.
type terminalSink struct {
	tabID string
	w     io.Writer
	ended chan string

	mu   sync.Mutex
	done bool
}

func newTerminalSink(tabID string, w io.Writer) *terminalSink {
	return &terminalSink{tabID: tabID, w: w, ended: make(chan string, 1)}
}

func (t *terminalSink) Publish(e events.Event) {
	if e.TabID != t.tabID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	switch e.Type {
	case events.Data:
		io.WriteString(t.w, e.Data)
	case events.Disconnected, events.Error:
		t.done = true
		t.ended <- e.Message
	}
}

func makeStdinRaw() (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, oldState) }, nil
}

func termSize() (cols, rows int, ok bool) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0, 0, false
	}
	c, r, err := term.GetSize(fd)
	if err != nil || c <= 0 || r <= 0 {
		return 0, 0, false
	}
	return c, r, true
}
