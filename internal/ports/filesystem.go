package ports

import (
	"io"
	"io/fs"
)

// FileSystem abstracts the file operations used for persisted state
// (result cache, config, recordings).
type FileSystem interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Stat returns file info for the named file.
	Stat(name string) (fs.FileInfo, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm fs.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Rename renames (moves) oldpath to newpath.
	Rename(oldpath, newpath string) error

	// UserHomeDir returns the current user's home directory.
	UserHomeDir() (string, error)

	// OpenFile opens a file for writing with the given os.O_* flags.
	OpenFile(name string, flag int, perm fs.FileMode) (FileHandle, error)

	// Getenv retrieves the value of the environment variable named by the key.
	Getenv(key string) string
}

// FileHandle is an open file being written.
type FileHandle interface {
	io.WriteCloser
	Name() string
}
