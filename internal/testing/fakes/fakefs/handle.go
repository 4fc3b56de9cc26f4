package fakefs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/acolita/shelltabs/internal/ports"
)

// OpenFile supports O_CREATE, O_EXCL, O_TRUNC and O_APPEND. Writes always
// append to the stored data.
func (f *FS) OpenFile(name string, flag int, perm fs.FileMode) (ports.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = filepath.Clean(name)
	fl, exists := f.files[name]
	switch {
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case !exists && flag&os.O_CREATE == 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	case !exists:
		if f.writeErr != nil {
			return nil, f.writeErr
		}
		f.mkdirAllLocked(filepath.Dir(name))
		fl = &file{mode: perm}
		f.files[name] = fl
	case flag&os.O_TRUNC != 0:
		fl.data = nil
	}
	return &handle{fs: f, name: name}, nil
}

type handle struct {
	fs   *FS
	name string

	mu     sync.Mutex
	closed bool
}

func (h *handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fs.ErrClosed
	}

	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.fs.writeErr != nil {
		return 0, h.fs.writeErr
	}
	fl, ok := h.fs.files[h.name]
	if !ok {
		return 0, &fs.PathError{Op: "write", Path: h.name, Err: fs.ErrNotExist}
	}
	fl.data = append(fl.data, p...)
	return len(p), nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fs.ErrClosed
	}
	h.closed = true
	return nil
}

func (h *handle) Name() string { return h.name }
