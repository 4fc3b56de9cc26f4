package ssh

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/acolita/shelltabs/internal/ports"
	"golang.org/x/crypto/ssh"
)

// ErrShellClosed is returned by writes after Close.
var ErrShellClosed = errors.New("shell closed")

// ptySession is the part of *ssh.Session a Shell drives after start.
type ptySession interface {
	WindowChange(h, w int) error
	Close() error
}

// Shell is an interactive shell on a PTY channel.
type Shell struct {
	session ptySession
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader

	// writeMu orders concurrent writers. It is never held by Close, which
	// unblocks a write stuck on the channel window by closing stdin.
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func openShell(conn *ssh.Client, opts ports.ShellOptions) (*Shell, error) {
	if opts.Term == "" {
		opts.Term = "xterm-256color"
	}
	if opts.Cols <= 0 {
		opts.Cols = 80
	}
	if opts.Rows <= 0 {
		opts.Rows = 24
	}

	session, err := conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(opts.Term, opts.Rows, opts.Cols, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &Shell{session: session, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (s *Shell) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isClosed() {
		return 0, ErrShellClosed
	}
	return s.stdin.Write(p)
}

func (s *Shell) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Shell) Stdout() io.Reader { return s.stdout }
func (s *Shell) Stderr() io.Reader { return s.stderr }

// Resize sends a window-change request.
func (s *Shell) Resize(cols, rows int) error {
	if s.isClosed() {
		return ErrShellClosed
	}
	return s.session.WindowChange(rows, cols)
}

// Close closes stdin and the channel. Safe to call more than once.
func (s *Shell) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stdin.Close()
	err := s.session.Close()
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return err
}

var _ ports.ShellChannel = (*Shell)(nil)
