package probe

import (
	"context"
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		uname  string
		family OSFamily
		detail string
	}{
		{"linux", "Linux web1 6.1.0-18-amd64 #1 SMP x86_64 GNU/Linux\n", Linux, ""},
		{"macos", "Darwin mbp.local 23.4.0 Darwin Kernel Version 23.4.0 arm64\n", MacOS, ""},
		{"cygwin", "CYGWIN_NT-10.0-19045 host 3.5.1 x86_64 Cygwin\n", WindowsBashLike, ""},
		{"mingw", "MINGW64_NT-10.0-22631 host 3.4.10 x86_64 Msys\n", WindowsBashLike, ""},
		{"msys", "MSYS_NT-10.0 host 3.4.10 x86_64 Msys\n", WindowsBashLike, ""},
		{"freebsd", "FreeBSD fw 14.0-RELEASE amd64\nsecond line\n", Unknown, "FreeBSD fw 14.0-RELEASE amd64"},
		{"empty", "", Unknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Classify(tt.uname)
			if env.OSFamily != tt.family {
				t.Errorf("OSFamily = %q, want %q", env.OSFamily, tt.family)
			}
			if env.Detail != tt.detail {
				t.Errorf("Detail = %q, want %q", env.Detail, tt.detail)
			}
		})
	}
}

type stubRunner struct {
	out    string
	err    error
	wd     string
	wdErr  error
	called string
}

func (s *stubRunner) Run(_ context.Context, cmd string) (string, error) {
	s.called = cmd
	return s.out, s.err
}

func (s *stubRunner) WorkingDirectory() (string, error) { return s.wd, s.wdErr }

func TestRun(t *testing.T) {
	r := &stubRunner{out: "Linux box 5.15.0\n", wd: "/home/ops"}
	env := Run(context.Background(), r)

	if r.called != Command {
		t.Errorf("ran %q, want %q", r.called, Command)
	}
	if env.OSFamily != Linux || env.WorkingDirectory != "/home/ops" {
		t.Errorf("env = %+v", env)
	}
}

func TestRun_ProbeError(t *testing.T) {
	r := &stubRunner{err: errors.New("exec refused"), wdErr: errors.New("no sftp")}
	env := Run(context.Background(), r)

	if env.OSFamily != Unknown || env.Detail != DetailProbeError {
		t.Errorf("env = %+v, want unknown probe error", env)
	}
	if env.WorkingDirectory != "" {
		t.Errorf("WorkingDirectory = %q, want empty", env.WorkingDirectory)
	}
}

func TestKnown(t *testing.T) {
	if !Linux.Known() || Unknown.Known() {
		t.Error("Known() misclassifies families")
	}
}
