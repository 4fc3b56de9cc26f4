// Package realfs provides the os-package implementation of ports.FileSystem.
package realfs

import (
	"io/fs"
	"os"

	"github.com/acolita/shelltabs/internal/ports"
)

// FS implements ports.FileSystem on the host filesystem.
type FS struct{}

// New returns a new real FileSystem.
func New() *FS {
	return &FS{}
}

func (f *FS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (f *FS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (f *FS) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }

func (f *FS) Remove(name string) error { return os.Remove(name) }

func (f *FS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (f *FS) UserHomeDir() (string, error) { return os.UserHomeDir() }

func (f *FS) OpenFile(name string, flag int, perm fs.FileMode) (ports.FileHandle, error) {
	return os.OpenFile(name, flag, perm)
}

func (f *FS) Getenv(key string) string { return os.Getenv(key) }

var _ ports.FileSystem = (*FS)(nil)
