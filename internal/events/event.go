// Package events defines the notifications tabs publish to the boundary and
// the sinks that carry them.
package events

import (
	"sync"
	"time"
)

// Type identifies an event.
type Type string

const (
	Connecting        Type = "connecting"
	Connected         Type = "connected"
	ShellReady        Type = "shellReady"
	EnvironmentUpdate Type = "environmentUpdate"
	Error             Type = "error"
	Disconnected      Type = "disconnected"
	Data              Type = "data"

	CommandCompleted Type = "commandCompleted"
	CaptureAborted   Type = "captureAborted"

	CommandChunk Type = "commandChunk"
	CommandReady Type = "commandReady"
	CommandError Type = "commandError"

	DiagnosisChunk Type = "diagnosisChunk"
	DiagnosisReady Type = "diagnosisReady"
	DiagnosisError Type = "diagnosisError"
)

// Event is one notification about a tab.
type Event struct {
	Type  Type      `json:"type"`
	TabID string    `json:"tabId"`
	Time  time.Time `json:"time"`

	Message string `json:"message,omitempty"`
	Data    string `json:"data,omitempty"`

	OSFamily         string `json:"osFamily,omitempty"`
	Detail           string `json:"detail,omitempty"`
	WorkingDirectory string `json:"workingDirectory,omitempty"`

	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Cached   bool   `json:"cached,omitempty"`
}

// Terminal reports whether no further events follow for the tab's session.
func (e Event) Terminal() bool {
	return e.Type == Disconnected
}

// Sink receives events. Implementations must not block for long: sinks are
// called from the session's output loop.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout publishes to several sinks in order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout returns a Fanout over sinks. Nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add appends a sink.
func (f *Fanout) Add(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

func (f *Fanout) Publish(e Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, s := range sinks {
		s.Publish(e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Wait blocks until an event matching match is recorded or timeout elapses.
func (r *Recorder) Wait(timeout time.Duration, match func(Event) bool) (Event, bool) {
	deadline := time.After(timeout)
	for {
		for _, e := range r.Events() {
			if match(e) {
				return e, true
			}
		}
		select {
		case <-r.notify:
		case <-deadline:
			return Event{}, false
		}
	}
}

// WaitType waits for the first event of type t.
func (r *Recorder) WaitType(t Type, timeout time.Duration) (Event, bool) {
	return r.Wait(timeout, func(e Event) bool { return e.Type == t })
}
