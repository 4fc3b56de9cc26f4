package nlcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

func encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	plain, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal entries: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(plain, make([]byte, 0, len(plain))), nil
}

func decode(data []byte) ([]Entry, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	plain, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal entries: %w", err)
	}
	return entries, nil
}

// load reads persisted entries. A missing or unreadable file starts empty.
func (c *Cache) load() {
	data, err := c.fs.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to load command cache", slog.String("path", c.path), slog.String("error", err.Error()))
		}
		return
	}

	entries, err := decode(data)
	if err != nil {
		slog.Warn("failed to parse command cache", slog.String("path", c.path), slog.String("error", err.Error()))
		return
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Query == "" || seen[e.Query] {
			continue
		}
		seen[e.Query] = true
		c.entries = append(c.entries, e)
	}
	if n := len(c.entries) - c.maxEntries; n > 0 {
		c.entries = c.entries[n:]
	}
}

// persistLocked writes entries next to the target and renames into place.
// Failures are logged; the in-memory cache stays authoritative.
func (c *Cache) persistLocked() {
	data, err := encode(c.entries)
	if err != nil {
		slog.Warn("failed to encode command cache", slog.String("error", err.Error()))
		return
	}

	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		slog.Warn("failed to create cache dir", slog.String("error", err.Error()))
		return
	}
	tmp := c.path + ".tmp"
	if err := c.fs.WriteFile(tmp, data, 0600); err != nil {
		slog.Warn("failed to write command cache", slog.String("path", tmp), slog.String("error", err.Error()))
		return
	}
	if err := c.fs.Rename(tmp, c.path); err != nil {
		slog.Warn("failed to replace command cache", slog.String("path", c.path), slog.String("error", err.Error()))
	}
}
