// Package nlcache caches natural-language queries to the shell commands
// generated for them. Entries are bounded by age and count and persisted as
// zstd-compressed JSON so they survive restarts.
package nlcache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acolita/shelltabs/internal/adapters/realclock"
	"github.com/acolita/shelltabs/internal/adapters/realfs"
	"github.com/acolita/shelltabs/internal/ports"
)

const (
	DefaultMaxEntries = 100
	DefaultMaxAge     = 30 * 24 * time.Hour
	fileName          = "nlcache.json.zst"
)

// Entry is one cached query.
type Entry struct {
	Query     string    `json:"query"`
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries []Entry // insertion order, oldest first

	path       string
	fs         ports.FileSystem
	clock      ports.Clock
	maxEntries int
	maxAge     time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithFileSystem sets the filesystem used for persistence.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(c *Cache) { c.fs = fs }
}

// WithClock sets the clock used for timestamps and expiry.
func WithClock(clock ports.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithPath sets the persistence file.
func WithPath(path string) Option {
	return func(c *Cache) { c.path = path }
}

// WithMaxEntries bounds the number of entries. Values below 1 keep the default.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithMaxAge sets how long an entry stays valid. Values below 1 keep the default.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// New creates a cache and loads any persisted entries.
func New(opts ...Option) *Cache {
	c := &Cache{
		fs:         realfs.New(),
		clock:      realclock.New(),
		maxEntries: DefaultMaxEntries,
		maxAge:     DefaultMaxAge,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.path == "" {
		c.path = c.defaultPath()
	}
	c.load()
	return c
}

func (c *Cache) defaultPath() string {
	home, err := c.fs.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return filepath.Join(home, ".cache", "shelltabs", fileName)
}

// Normalize case-folds query, trims it and collapses inner whitespace.
func Normalize(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Lookup returns the cached command for query. An expired entry is removed
// and reported as a miss.
func (c *Cache) Lookup(query string) (string, bool) {
	key := Normalize(query)
	if key == "" {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(key)
	if i < 0 {
		return "", false
	}
	e := c.entries[i]
	if c.clock.Now().Sub(e.Timestamp) > c.maxAge {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
		c.persistLocked()
		slog.Debug("cache entry expired", slog.String("query", key))
		return "", false
	}
	return e.Command, true
}

// Store inserts or overwrites the entry for query with the current time and
// keeps only the newest entries by timestamp. Empty commands are ignored.
func (c *Cache) Store(query, command string) {
	key := Normalize(query)
	if key == "" || strings.TrimSpace(command) == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexLocked(key); i >= 0 {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
	}
	c.entries = append(c.entries, Entry{Query: key, Command: command, Timestamp: c.clock.Now()})

	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].Timestamp.Before(c.entries[j].Timestamp)
	})
	if n := len(c.entries) - c.maxEntries; n > 0 {
		c.entries = append([]Entry(nil), c.entries[n:]...)
	}
	c.persistLocked()
}

// Entries returns a copy of all entries, oldest first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry and removes the persisted file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = nil
	if err := c.fs.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Path returns the persistence file.
func (c *Cache) Path() string {
	return c.path
}

func (c *Cache) indexLocked(key string) int {
	for i, e := range c.entries {
		if e.Query == key {
			return i
		}
	}
	return -1
}
