// Package recording writes tab output to asciicast v2 files.
package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/acolita/shelltabs/internal/ports"
)

// Recorder writes one tab's terminal output in asciicast v2 format.
// See: https://docs.asciinema.org/manual/asciicast/v2/
type Recorder struct {
	mu        sync.Mutex
	file      ports.FileHandle
	startTime time.Time
	closed    bool
	clock     ports.Clock
}

// Header is the asciicast v2 header line.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Frame is an asciicast v2 event line [time, code, data].
type Frame struct {
	Time float64
	Code string
	Data string
}

// MarshalJSON encodes the frame as a three element array.
func (f Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.Time, f.Code, f.Data})
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName returns the recording file name for a tab started at t.
func FileName(tabID string, t time.Time) string {
	name := unsafeName.ReplaceAllString(tabID, "_")
	if name == "" {
		name = "tab"
	}
	return fmt.Sprintf("%s_%s.cast", name, t.Format("20060102_150405"))
}

// NewRecorder creates the recording file under dir and writes its header.
func NewRecorder(dir, tabID, title string, opts ports.ShellOptions, fsys ports.FileSystem, clock ports.Clock) (*Recorder, error) {
	if err := fsys.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}

	start := clock.Now()
	file, err := fsys.OpenFile(filepath.Join(dir, FileName(tabID, start)), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	header := Header{
		Version:   2,
		Width:     opts.Cols,
		Height:    opts.Rows,
		Timestamp: start.Unix(),
		Title:     title,
	}
	if opts.Term != "" {
		header.Env = map[string]string{"TERM": opts.Term}
	}
	line, err := json.Marshal(header)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("marshal header: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &Recorder{file: file, startTime: start, clock: clock}, nil
}

// Output records terminal output.
func (r *Recorder) Output(data string) error {
	return r.write("o", data)
}

// Mark records a marker, shown as a chapter by asciinema players.
func (r *Recorder) Mark(label string) error {
	return r.write("m", label)
}

func (r *Recorder) write(code, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	line, err := json.Marshal(Frame{
		Time: r.clock.Now().Sub(r.startTime).Seconds(),
		Code: code,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close closes the file. Later writes are ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Path returns the recording file path.
func (r *Recorder) Path() string {
	return r.file.Name()
}
