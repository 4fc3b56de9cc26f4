package recording

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/acolita/shelltabs/internal/events"
	"github.com/acolita/shelltabs/internal/ports"
)

// Manager is an events.Sink keeping one Recorder per tab. A recording starts
// when the tab's shell is ready and ends when the tab disconnects.
type Manager struct {
	mu        sync.Mutex
	recorders map[string]*Recorder

	dir   string
	opts  ports.ShellOptions
	fs    ports.FileSystem
	clock ports.Clock
}

// NewManager returns a manager writing to dir. opts sizes the header.
func NewManager(dir string, opts ports.ShellOptions, fsys ports.FileSystem, clock ports.Clock) *Manager {
	return &Manager{
		recorders: make(map[string]*Recorder),
		dir:       dir,
		opts:      opts,
		fs:        fsys,
		clock:     clock,
	}
}

// Publish implements events.Sink.
func (m *Manager) Publish(e events.Event) {
	switch e.Type {
	case events.ShellReady:
		m.start(e.TabID, e.Message)
	case events.Data:
		if r := m.recorder(e.TabID); r != nil {
			if err := r.Output(e.Data); err != nil {
				slog.Warn("recording write failed", slog.String("tab_id", e.TabID), slog.String("error", err.Error()))
			}
		}
	case events.CommandCompleted:
		if r := m.recorder(e.TabID); r != nil && e.ExitCode != nil {
			r.Mark(e.Command + " [" + strconv.Itoa(*e.ExitCode) + "]")
		}
	case events.Disconnected:
		m.stop(e.TabID)
	}
}

func (m *Manager) start(tabID, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.recorders[tabID]; ok {
		prev.Close()
		delete(m.recorders, tabID)
	}
	r, err := NewRecorder(m.dir, tabID, title, m.opts, m.fs, m.clock)
	if err != nil {
		slog.Warn("recording not started", slog.String("tab_id", tabID), slog.String("error", err.Error()))
		return
	}
	m.recorders[tabID] = r
	slog.Debug("recording started", slog.String("tab_id", tabID), slog.String("path", r.Path()))
}

func (m *Manager) stop(tabID string) {
	m.mu.Lock()
	r, ok := m.recorders[tabID]
	delete(m.recorders, tabID)
	m.mu.Unlock()

	if ok {
		r.Close()
	}
}

func (m *Manager) recorder(tabID string) *Recorder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recorders[tabID]
}

// Path returns the active recording path for a tab, or "".
func (m *Manager) Path(tabID string) string {
	if r := m.recorder(tabID); r != nil {
		return r.Path()
	}
	return ""
}

// CloseAll stops every active recording.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.recorders {
		r.Close()
		delete(m.recorders, id)
	}
}

var _ events.Sink = (*Manager)(nil)
