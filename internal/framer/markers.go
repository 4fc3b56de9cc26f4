// Package framer isolates one command's output and exit status from a live
// interactive shell stream.
//
// A command is wrapped between two single-use echo markers followed by an
// exit status line. The capture State consumes raw stream chunks of any size
// and reports an Outcome once the command has finished, the markers turned
// out to be corrupted, or the stream ended first.
package framer

import (
	"fmt"
	"sync"

	"github.com/acolita/shelltabs/internal/ports"
)

const (
	startPrefix = "CMD_START_MARKER_"
	endPrefix   = "CMD_END_MARKER_"

	suffixLen = 6
	alphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Markers is the pair of sentinel tokens for one invocation.
type Markers struct {
	Start string
	End   string
}

// Generator produces markers that never repeat within a process.
// The id is the current unix milliseconds, a sequence number and a random
// base36 suffix, so it needs no quoting inside a double-quoted echo.
type Generator struct {
	clock ports.Clock
	rand  ports.Random

	mu  sync.Mutex
	seq uint64
}

// NewGenerator returns a marker generator.
func NewGenerator(clock ports.Clock, rand ports.Random) *Generator {
	return &Generator{clock: clock, rand: rand}
}

// Next returns a fresh marker pair.
func (g *Generator) Next() Markers {
	g.mu.Lock()
	g.seq++
	seq := g.seq
	g.mu.Unlock()

	buf := make([]byte, suffixLen)
	if _, err := g.rand.Read(buf); err != nil {
		// The sequence number alone keeps ids unique.
		clear(buf)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}

	id := fmt.Sprintf("%d_%d%s", g.clock.Now().UnixMilli(), seq, buf)
	return Markers{Start: startPrefix + id, End: endPrefix + id}
}

// WireLine returns the exact line written to the shell for command.
func WireLine(m Markers, command string) string {
	return fmt.Sprintf("echo \"%s\"; %s; echo \"%s\"; echo \"exit_code:$?\"\n", m.Start, command, m.End)
}
