package fakefs

import (
	"errors"
	"io/fs"
	"os"
	"testing"
)

func TestFS_ReadWriteFile(t *testing.T) {
	f := New()

	if err := f.WriteFile("/a/b/file.txt", []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	data, err := f.ReadFile("/a/b/file.txt")
	if err != nil || string(data) != "data" {
		t.Fatalf("ReadFile() = %q, %v", data, err)
	}

	info, err := f.Stat("/a/b")
	if err != nil || !info.IsDir() {
		t.Errorf("parent directory not created: %v", err)
	}
	if f.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", f.Writes())
	}
}

func TestFS_ReadMissing(t *testing.T) {
	_, err := New().ReadFile("/missing")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile() error = %v, want ErrNotExist", err)
	}
}

func TestFS_WriteError(t *testing.T) {
	f := New()
	boom := errors.New("disk full")
	f.SetWriteError(boom)

	if err := f.WriteFile("/x", nil, 0600); !errors.Is(err, boom) {
		t.Errorf("WriteFile() error = %v, want %v", err, boom)
	}
	f.SetWriteError(nil)
	if err := f.WriteFile("/x", nil, 0600); err != nil {
		t.Errorf("WriteFile() after clear error = %v", err)
	}
}

func TestFS_RenameAndRemove(t *testing.T) {
	f := New()
	f.AddFile("/tmp/a", []byte("1"), 0600)

	if err := f.Rename("/tmp/a", "/tmp/b"); err != nil {
		t.Fatalf("Rename() error: %v", err)
	}
	if _, err := f.Stat("/tmp/a"); err == nil {
		t.Error("old path still exists")
	}
	if err := f.Remove("/tmp"); err == nil {
		t.Error("Remove() of non-empty dir should fail")
	}
	if err := f.Remove("/tmp/b"); err != nil {
		t.Errorf("Remove() error: %v", err)
	}
	if got := f.Files(); len(got) != 0 {
		t.Errorf("Files() = %v, want empty", got)
	}
}

func TestOpenFile(t *testing.T) {
	f := New()

	h, err := f.OpenFile("/var/rec/a.cast", os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	h.Write([]byte("one\n"))
	h.Write([]byte("two\n"))
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Write([]byte("late")); err == nil {
		t.Error("Write() after Close succeeded")
	}

	data, _ := f.ReadFile("/var/rec/a.cast")
	if string(data) != "one\ntwo\n" {
		t.Errorf("file = %q", data)
	}
	if h.Name() != "/var/rec/a.cast" {
		t.Errorf("Name() = %q", h.Name())
	}

	if _, err := f.OpenFile("/var/rec/a.cast", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600); !errors.Is(err, fs.ErrExist) {
		t.Errorf("exclusive reopen error = %v, want ErrExist", err)
	}
	if _, err := f.OpenFile("/missing", os.O_WRONLY, 0); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("open missing error = %v, want ErrNotExist", err)
	}
}
