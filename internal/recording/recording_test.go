package recording

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/ports"
	"github.com/acolita/shelltabs/internal/testing/fakes/fakeclock"
	"github.com/acolita/shelltabs/internal/testing/fakes/fakefs"
)

var start = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func TestFrameMarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"output", Frame{Time: 1.5, Code: "o", Data: "hello"}, `[1.5,"o","hello"]`},
		{"zero", Frame{Code: "o"}, `[0,"o",""]`},
		{"marker", Frame{Time: 2, Code: "m", Data: "ls [0]"}, `[2,"m","ls [0]"]`},
		{"escapes", Frame{Time: 1, Code: "o", Data: "a\r\n\"b\""}, `[1,"o","a\r\n\"b\""]`},
		{"unicode", Frame{Time: 0.25, Code: "o", Data: "héllo 世界"}, `[0.25,"o","héllo 世界"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.frame)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		tabID string
		want  string
	}{
		{"tab-1", "tab-1_20260301_093000.cast"},
		{"../etc/passwd", "_etc_passwd_20260301_093000.cast"},
		{"web 1", "web_1_20260301_093000.cast"},
		{"", "tab_20260301_093000.cast"},
	}
	for _, tt := range tests {
		if got := FileName(tt.tabID, start); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.tabID, got, tt.want)
		}
	}
}

func lines(t *testing.T, fs *fakefs.FS, path string) []string {
	t.Helper()
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestRecorder(t *testing.T) {
	fs := fakefs.New()
	clock := fakeclock.New(start)

	r, err := NewRecorder("/rec", "tab-1", "ops@web1:22", ports.ShellOptions{Term: "xterm", Cols: 100, Rows: 30}, fs, clock)
	if err != nil {
		t.Fatalf("NewRecorder() error: %v", err)
	}
	if r.Path() != "/rec/tab-1_20260301_093000.cast" {
		t.Errorf("Path() = %q", r.Path())
	}

	clock.Advance(500 * time.Millisecond)
	r.Output("$ ")
	clock.Advance(time.Second)
	r.Mark("ls [0]")
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Output("ignored"); err != nil {
		t.Errorf("Output() after Close error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	got := lines(t, fs, r.Path())
	if len(got) != 3 {
		t.Fatalf("got %d lines: %q", len(got), got)
	}
	var h Header
	if err := json.Unmarshal([]byte(got[0]), &h); err != nil {
		t.Fatal(err)
	}
	if h.Version != 2 || h.Width != 100 || h.Height != 30 || h.Timestamp != start.Unix() {
		t.Errorf("header = %+v", h)
	}
	if h.Title != "ops@web1:22" || h.Env["TERM"] != "xterm" {
		t.Errorf("header title/env = %q %v", h.Title, h.Env)
	}
	if got[1] != `[0.5,"o","$ "]` {
		t.Errorf("line 1 = %s", got[1])
	}
	if got[2] != `[1.5,"m","ls [0]"]` {
		t.Errorf("line 2 = %s", got[2])
	}
}

func TestNewRecorder_Errors(t *testing.T) {
	clock := fakeclock.New(start)

	fs := fakefs.New()
	fs.AddFile("/rec/tab-1_20260301_093000.cast", nil, 0600)
	if _, err := NewRecorder("/rec", "tab-1", "", ports.ShellOptions{}, fs, clock); err == nil {
		t.Error("NewRecorder() over an existing file succeeded")
	}

	fs = fakefs.New()
	fs.SetWriteError(errors.New("disk full"))
	if _, err := NewRecorder("/rec", "tab-1", "", ports.ShellOptions{}, fs, clock); err == nil {
		t.Error("NewRecorder() with failing fs succeeded")
	}
}

func exit(n int) *int { return &n }

func TestManager(t *testing.T) {
	fs := fakefs.New()
	clock := fakeclock.New(start)
	m := NewManager("/rec", ports.ShellOptions{Cols: 80, Rows: 24}, fs, clock)

	// Output before the shell is ready is not recorded.
	m.Publish(events.Event{Type: events.Data, TabID: "t1", Data: "early"})
	if len(fs.Files()) != 0 {
		t.Fatalf("files before shellReady: %v", fs.Files())
	}

	m.Publish(events.Event{Type: events.ShellReady, TabID: "t1"})
	path := m.Path("t1")
	if path == "" {
		t.Fatal("no recording after shellReady")
	}
	clock.Advance(time.Second)
	m.Publish(events.Event{Type: events.Data, TabID: "t1", Data: "hi\r\n"})
	m.Publish(events.Event{Type: events.Data, TabID: "other", Data: "x"})
	m.Publish(events.Event{Type: events.CommandCompleted, TabID: "t1", Command: "false", ExitCode: exit(1)})
	m.Publish(events.Event{Type: events.Disconnected, TabID: "t1"})

	if m.Path("t1") != "" {
		t.Error("recording still active after disconnect")
	}
	m.Publish(events.Event{Type: events.Data, TabID: "t1", Data: "late"})

	got := lines(t, fs, path)
	want := []string{`[1,"o","hi\r\n"]`, `[1,"m","false [1]"]`}
	if len(got) != 3 || got[1] != want[0] || got[2] != want[1] {
		t.Errorf("recording = %q, want header + %q", got, want)
	}
}

func TestManager_RestartAndCloseAll(t *testing.T) {
	fs := fakefs.New()
	clock := fakeclock.New(start)
	m := NewManager("/rec", ports.ShellOptions{}, fs, clock)

	m.Publish(events.Event{Type: events.ShellReady, TabID: "t1"})
	first := m.Path("t1")
	clock.Advance(2 * time.Second)
	m.Publish(events.Event{Type: events.ShellReady, TabID: "t1"})
	second := m.Path("t1")
	if first == second || second == "" {
		t.Errorf("restart paths = %q, %q", first, second)
	}

	m.Publish(events.Event{Type: events.ShellReady, TabID: "t2"})
	m.CloseAll()
	if m.Path("t1") != "" || m.Path("t2") != "" {
		t.Error("CloseAll left recordings active")
	}
	if n := len(fs.Files()); n != 3 {
		t.Errorf("files = %d, want 3", n)
	}
}

func TestManager_StartFailure(t *testing.T) {
	fs := fakefs.New()
	fs.SetWriteError(errors.New("read-only"))
	m := NewManager("/rec", ports.ShellOptions{}, fs, fakeclock.New(start))

	m.Publish(events.Event{Type: events.ShellReady, TabID: "t1"})
	m.Publish(events.Event{Type: events.Data, TabID: "t1", Data: "x"})
	if m.Path("t1") != "" {
		t.Error("recording active despite failing fs")
	}
}
