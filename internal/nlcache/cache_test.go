package nlcache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/acolita/shelltabs/internal/testing/fakes/fakeclock"
	"github.com/acolita/shelltabs/internal/testing/fakes/fakefs"
)

const testPath = "/home/test/.cache/shelltabs/nlcache.json.zst"

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeclock.Clock, *fakefs.FS) {
	t.Helper()
	clock := fakeclock.New(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	fsys := fakefs.New()
	base := []Option{WithClock(clock), WithFileSystem(fsys)}
	return New(append(base, opts...)...), clock, fsys
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"list files", "list files"},
		{"  List   Files  ", "list files"},
		{"Show\tDISK\nusage", "show disk usage"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLookup_HitIgnoresCaseAndWhitespace(t *testing.T) {
	c, _, _ := newTestCache(t)
	c.Store("list files", "ls -la")

	got, ok := c.Lookup("  List   Files  ")
	if !ok || got != "ls -la" {
		t.Errorf("Lookup() = %q, %v, want ls -la hit", got, ok)
	}
}

func TestLookup_Miss(t *testing.T) {
	c, _, _ := newTestCache(t)
	if _, ok := c.Lookup("anything"); ok {
		t.Error("Lookup() on empty cache hit")
	}
	if _, ok := c.Lookup("   "); ok {
		t.Error("Lookup() of blank query hit")
	}
}

func TestStore_Overwrite(t *testing.T) {
	c, clock, _ := newTestCache(t)
	c.Store("disk usage", "du -sh")
	clock.Advance(time.Minute)
	c.Store("Disk Usage", "df -h")

	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	got, _ := c.Lookup("disk usage")
	if got != "df -h" {
		t.Errorf("Lookup() = %q, want df -h", got)
	}
	if e := c.Entries()[0]; !e.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, clock.Now())
	}
}

func TestStore_IgnoresEmptyCommand(t *testing.T) {
	c, _, _ := newTestCache(t)
	c.Store("q", "  ")
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestStore_SizeBoundEvictsOldestInserted(t *testing.T) {
	c, clock, _ := newTestCache(t, WithMaxEntries(3))

	for i := 0; i < 4; i++ {
		c.Store(fmt.Sprintf("query %d", i), fmt.Sprintf("cmd %d", i))
		clock.Advance(time.Second)
	}
	// Looking up the oldest entries must not protect them from eviction.
	c.Lookup("query 1")
	c.Store("query 4", "cmd 4")

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	for _, q := range []string{"query 0", "query 1"} {
		if _, ok := c.Lookup(q); ok {
			t.Errorf("Lookup(%q) hit, want evicted", q)
		}
	}
	for _, q := range []string{"query 2", "query 3", "query 4"} {
		if _, ok := c.Lookup(q); !ok {
			t.Errorf("Lookup(%q) missed", q)
		}
	}
}

func TestStore_SizeBoundWithEqualTimestamps(t *testing.T) {
	c, _, _ := newTestCache(t, WithMaxEntries(2))
	c.Store("a", "1")
	c.Store("b", "2")
	c.Store("c", "3")

	if _, ok := c.Lookup("a"); ok {
		t.Error("first inserted entry survived")
	}
}

func TestLookup_ExpiredEntryIsRemoved(t *testing.T) {
	c, clock, _ := newTestCache(t, WithMaxAge(24*time.Hour))
	c.Store("old", "echo old")
	c.Store("fresh", "echo fresh")
	clock.Advance(25 * time.Hour)
	c.Store("fresh", "echo fresh")

	before := c.Len()
	if _, ok := c.Lookup("old"); ok {
		t.Fatal("expired entry hit")
	}
	if c.Len() != before-1 {
		t.Errorf("Len() = %d, want %d", c.Len(), before-1)
	}
	if _, ok := c.Lookup("old"); ok {
		t.Error("expired entry hit on second lookup")
	}
	if _, ok := c.Lookup("fresh"); !ok {
		t.Error("fresh entry missed")
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	c, clock, fsys := newTestCache(t)
	c.Store("list files", "ls -la")
	clock.Advance(time.Hour)
	c.Store("who am i", "whoami")

	if _, err := fsys.Stat(testPath); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}

	reloaded := New(WithClock(clock), WithFileSystem(fsys))
	got, want := reloaded.Entries(), c.Entries()
	if len(got) != len(want) {
		t.Fatalf("reloaded %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Query != want[i].Query || got[i].Command != want[i].Command || !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPersistence_CorruptFileStartsEmpty(t *testing.T) {
	fsys := fakefs.New()
	fsys.AddFile(testPath, []byte("not zstd"), 0600)

	c := New(WithFileSystem(fsys), WithClock(fakeclock.New(time.Now())))
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestPersistence_WriteFailureKeepsMemory(t *testing.T) {
	c, _, fsys := newTestCache(t)
	fsys.SetWriteError(errors.New("read-only"))

	c.Store("uptime", "uptime")
	if got, ok := c.Lookup("uptime"); !ok || got != "uptime" {
		t.Errorf("Lookup() = %q, %v after write failure", got, ok)
	}
}

func TestClear(t *testing.T) {
	c, _, fsys := newTestCache(t)
	c.Store("x", "y")

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
	if _, err := fsys.Stat(c.Path()); err == nil {
		t.Error("cache file still exists after Clear")
	}
	if err := c.Clear(); err != nil {
		t.Errorf("second Clear() error: %v", err)
	}
}
