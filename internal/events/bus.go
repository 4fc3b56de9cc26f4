package events

import (
	"log/slog"
	"sync"
)

const defaultDepth = 256

// AllTabs subscribes to events of every tab.
const AllTabs = ""

// Bus fans events out to per-tab subscribers. Slow subscribers lose output
// instead of stalling the publisher. Lifecycle events are never lost: when a
// subscriber is full they displace its oldest buffered event.
type Bus struct {
	mu    sync.Mutex
	subs  map[string]map[chan Event]struct{}
	depth int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:  make(map[string]map[chan Event]struct{}),
		depth: defaultDepth,
	}
}

// Subscribe registers a subscriber for tabID, or for every tab with AllTabs.
// The returned cancel func unregisters and closes the channel.
func (b *Bus) Subscribe(tabID string) (<-chan Event, func()) {
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	tabSubs := b.subs[tabID]
	if tabSubs == nil {
		tabSubs = make(map[chan Event]struct{})
		b.subs[tabID] = tabSubs
	}
	tabSubs[ch] = struct{}{}
	count := len(tabSubs)
	b.mu.Unlock()
	slog.Debug("event bus subscribe", slog.String("tab_id", tabID), slog.Int("subs", count))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[tabID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, tabID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs[e.TabID])+len(b.subs[AllTabs]))
	for ch := range b.subs[e.TabID] {
		subs = append(subs, ch)
	}
	if e.TabID != AllTabs {
		for ch := range b.subs[AllTabs] {
			subs = append(subs, ch)
		}
	}
	// Sends happen under the lock so a concurrent cancel cannot close a
	// channel mid-send. They never block: only the subscriber drains ch
	// while the lock is held, so room made by eviction stays free.
	dropped := 0
	for _, ch := range subs {
		select {
		case ch <- e:
			continue
		default:
		}
		if !lifecycle(e.Type) {
			dropped++
			continue
		}
		select {
		case <-ch:
			dropped++
		default:
		}
		select {
		case ch <- e:
		default:
			dropped++
		}
	}
	b.mu.Unlock()

	if dropped > 0 {
		slog.Debug("event bus dropped", slog.String("tab_id", e.TabID), slog.Int("count", dropped))
	}
}

// lifecycle reports whether t changes the state of a tab or a command.
func lifecycle(t Type) bool {
	switch t {
	case Disconnected, Error, CommandCompleted, CaptureAborted, DiagnosisReady, DiagnosisError:
		return true
	}
	return false
}
