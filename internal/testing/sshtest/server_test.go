package sshtest

import (
	"net"
	"strconv"
	"testing"

	gossh "golang.org/x/crypto/ssh"
)

func dial(t *testing.T, s *Server, user, password string) *gossh.Client {
	t.Helper()
	addr := net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
	c, err := gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{gossh.Password(password)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestServer_ExecOutput(t *testing.T) {
	s, err := New(WithExecOutput("uname -a", "Darwin test 23.0.0\n"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	sess, err := dial(t, s, "test", "test").NewSession()
	if err != nil {
		t.Fatal(err)
	}
	out, err := sess.Output("uname -a")
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if string(out) != "Darwin test 23.0.0\n" {
		t.Errorf("Output() = %q", out)
	}
}

func TestServer_RunsCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a local shell")
	}
	s, err := New()
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	sess, err := dial(t, s, "test", "test").NewSession()
	if err != nil {
		t.Fatal(err)
	}
	out, err := sess.Output("echo hello")
	if err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("Output() = %q, want hello", out)
	}
}

func TestServer_RejectsBadPassword(t *testing.T) {
	s, err := New(WithUser("ops", "right"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	addr := net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
	_, err = gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            "ops",
		Auth:            []gossh.AuthMethod{gossh.Password("wrong")},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
	})
	if err == nil {
		t.Fatal("Dial() with wrong password succeeded")
	}
}
