// Package sshtest runs an in-process SSH server backed by a real local shell
// on a PTY, for transport and session integration tests.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/creack/pty"
	gliderssh "github.com/gliderlabs/ssh"
	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
)

// Size is a terminal geometry seen by the server.
type Size struct {
	Cols int
	Rows int
}

// Server is an SSH server on 127.0.0.1.
type Server struct {
	srv      *gliderssh.Server
	listener net.Listener
	shell    string

	mu         sync.Mutex
	users      map[string]string
	keys       []gossh.PublicKey
	execOutput map[string]string
	resized    chan Size
}

// Option configures the server.
type Option func(*Server)

// WithUser accepts username with password.
func WithUser(username, password string) Option {
	return func(s *Server) { s.users[username] = password }
}

// WithAuthorizedKey accepts public key authentication with key for any user.
func WithAuthorizedKey(key gossh.PublicKey) Option {
	return func(s *Server) { s.keys = append(s.keys, key) }
}

// WithExecOutput answers the exec request command with output instead of
// running it.
func WithExecOutput(command, output string) Option {
	return func(s *Server) { s.execOutput[command] = output }
}

// WithShell sets the shell binary. Defaults to /bin/sh.
func WithShell(path string) Option {
	return func(s *Server) { s.shell = path }
}

// New starts a server on a random local port.
func New(opts ...Option) (*Server, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	signer, err := gossh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("host key signer: %w", err)
	}

	s := &Server{
		shell:      "/bin/sh",
		users:      map[string]string{"test": "test"},
		execOutput: make(map[string]string),
		resized:    make(chan Size, 16),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = &gliderssh.Server{
		Handler:          s.handleSession,
		PasswordHandler:  s.handlePassword,
		PublicKeyHandler: s.handlePublicKey,
		SubsystemHandlers: map[string]gliderssh.SubsystemHandler{
			"sftp": handleSFTP,
		},
	}
	s.srv.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, gliderssh.ErrServerClosed) {
			slog.Debug("sshtest serve ended", slog.String("error", err.Error()))
		}
	}()
	return s, nil
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.listener.Addr().String())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Resized delivers every window-change the server applies.
func (s *Server) Resized() <-chan Size {
	return s.resized
}

// Close stops the server and drops every connection.
func (s *Server) Close() error {
	return s.srv.Close()
}

func (s *Server) handlePassword(ctx gliderssh.Context, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.users[ctx.User()]
	return ok && want == password
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if gliderssh.KeysEqual(k, key) {
			return true
		}
	}
	return false
}

func (s *Server) handleSession(sess gliderssh.Session) {
	command := sess.RawCommand()

	s.mu.Lock()
	canned, ok := s.execOutput[command]
	s.mu.Unlock()
	if command != "" && ok {
		io.WriteString(sess, canned)
		sess.Exit(0)
		return
	}

	var cmd *exec.Cmd
	if command == "" {
		cmd = exec.Command(s.shell)
	} else {
		cmd = exec.Command(s.shell, "-c", command)
	}
	cmd.Env = append(os.Environ(), "PS1=$ ")

	ptyReq, winCh, isPty := sess.Pty()
	if !isPty {
		cmd.Stdout = sess
		cmd.Stderr = sess.Stderr()
		sess.Exit(exitCode(cmd.Run()))
		return
	}

	cmd.Env = append(cmd.Env, "TERM="+ptyReq.Term)
	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(ptyReq.Window.Width),
		Rows: uint16(ptyReq.Window.Height),
	})
	if err != nil {
		slog.Debug("sshtest pty start failed", slog.String("error", err.Error()))
		sess.Exit(1)
		return
	}
	stopWin := make(chan struct{})
	winDone := make(chan struct{})
	defer func() {
		close(stopWin)
		<-winDone
		f.Close()
	}()

	go func() {
		defer close(winDone)
		for {
			select {
			case win, ok := <-winCh:
				if !ok {
					return
				}
				pty.Setsize(f, &pty.Winsize{Cols: uint16(win.Width), Rows: uint16(win.Height)})
				select {
				case s.resized <- Size{Cols: win.Width, Rows: win.Height}:
				default:
				}
			case <-stopWin:
				return
			}
		}
	}()
	go func() {
		// Client input ended or the channel closed: hang up the shell.
		io.Copy(f, sess)
		cmd.Process.Kill()
	}()

	copied := make(chan struct{})
	go func() {
		io.Copy(sess, f)
		close(copied)
	}()

	code := exitCode(cmd.Wait())
	<-copied
	sess.Exit(code)
}

func handleSFTP(sess gliderssh.Session) {
	server, err := sftp.NewServer(sess)
	if err != nil {
		slog.Debug("sshtest sftp init failed", slog.String("error", err.Error()))
		return
	}
	if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("sshtest sftp ended", slog.String("error", err.Error()))
	}
	server.Close()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
