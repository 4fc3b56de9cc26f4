package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acolita/shelltabs/internal/framer"
)

// Pending is a command submitted to a tab's shell. There is no completion
// timeout: a command that never prints its end marker stays pending until the
// tab closes. Callers bound their own wait with Wait's context.
type Pending struct {
	Command string
	Markers framer.Markers

	done    chan struct{}
	outcome framer.Outcome
}

func newPending(command string, m framer.Markers) *Pending {
	return &Pending{Command: command, Markers: m, done: make(chan struct{})}
}

// Done is closed once the outcome is known.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Outcome returns the result. It is only meaningful after Done is closed.
func (p *Pending) Outcome() framer.Outcome { return p.outcome }

// Wait blocks until the outcome is known or ctx ends. Giving up does not
// cancel the capture.
func (p *Pending) Wait(ctx context.Context) (framer.Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, nil
	case <-ctx.Done():
		return framer.Outcome{}, ctx.Err()
	}
}

func (p *Pending) resolve(o framer.Outcome) {
	p.outcome = o
	close(p.done)
}

func (ts *tabSession) execute(ctx context.Context, command string) (*Pending, error) {
	// The environment must be known before commands run.
	for _, ready := range []<-chan struct{}{ts.probeDone, ts.shellReady} {
		select {
		case <-ready:
		case <-ts.closed:
			return nil, ErrNotConnected
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ts.mu.Lock()
	if ts.isClosed() || ts.shell == nil {
		ts.mu.Unlock()
		return nil, ErrNotConnected
	}
	if ts.capture.Active {
		ts.mu.Unlock()
		return nil, ErrCaptureBusy
	}
	m := ts.reg.markers.Next()
	ts.capture = framer.Arm(command, m)
	p := newPending(command, m)
	ts.pending = p
	shell := ts.shell
	ts.mu.Unlock()

	// The write happens outside the lock so output processing is never
	// stuck behind a slow channel.
	if _, err := shell.Write([]byte(framer.WireLine(m, command))); err != nil {
		ts.mu.Lock()
		if ts.pending == p {
			ts.capture = framer.State{}
			ts.pending = nil
		}
		ts.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	ts.log().Debug("command submitted", slog.String("command", command), slog.String("marker", m.Start))
	return p, nil
}
