// Package probe classifies the operating system family of a remote host.
package probe

import (
	"context"
	"log/slog"
	"strings"
)

// OSFamily is the coarse operating system class of a remote host.
type OSFamily string

const (
	Linux           OSFamily = "Linux"
	MacOS           OSFamily = "macOS"
	WindowsBashLike OSFamily = "Windows (bash-like)"
	Unknown         OSFamily = "unknown"
)

// Command is run once per session to identify the host.
const Command = "uname -a"

// DetailProbeError is the Detail of an Environment whose probe failed.
const DetailProbeError = "probe error"

// Environment describes a remote host as seen right after login.
type Environment struct {
	OSFamily         OSFamily `json:"os_family"`
	Detail           string   `json:"detail,omitempty"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
}

// Runner is the part of a transport the probe needs.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
	WorkingDirectory() (string, error)
}

// Classify maps `uname -a` output to an OS family. Unrecognized output keeps
// its first line as Detail.
func Classify(uname string) Environment {
	switch {
	case strings.Contains(uname, "Linux"):
		return Environment{OSFamily: Linux}
	case strings.Contains(uname, "Darwin"):
		return Environment{OSFamily: MacOS}
	case strings.Contains(uname, "CYGWIN"),
		strings.Contains(uname, "MINGW"),
		strings.Contains(uname, "MSYS"):
		return Environment{OSFamily: WindowsBashLike}
	}
	first, _, _ := strings.Cut(strings.TrimSpace(uname), "\n")
	return Environment{OSFamily: Unknown, Detail: strings.TrimSpace(first)}
}

// Run probes the host behind r. It never fails: a probe error yields an
// Unknown environment. The working directory is best effort.
func Run(ctx context.Context, r Runner) Environment {
	out, err := r.Run(ctx, Command)
	var env Environment
	if err != nil {
		slog.Debug("environment probe failed", slog.String("error", err.Error()))
		env = Environment{OSFamily: Unknown, Detail: DetailProbeError}
	} else {
		env = Classify(out)
	}

	if wd, err := r.WorkingDirectory(); err == nil {
		env.WorkingDirectory = wd
	} else {
		slog.Debug("working directory lookup failed", slog.String("error", err.Error()))
	}
	return env
}

// Known reports whether the family was positively identified.
func (f OSFamily) Known() bool {
	return f == Linux || f == MacOS || f == WindowsBashLike
}
