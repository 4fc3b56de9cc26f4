package framer

import (
	"regexp"
	"strconv"
	"strings"
)

var exitCodePattern = regexp.MustCompile(`exit_code:(-?\d+)`)

// Kind classifies how a capture ended.
type Kind int

const (
	// Completed means both markers and the exit status were seen.
	Completed Kind = iota + 1
	// Corrupted means the end marker showed up before the start marker.
	Corrupted
	// Aborted means the stream ended before the exit status was known.
	Aborted
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Corrupted:
		return "corrupted"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ReasonStreamClosed is the abort reason used when the shell stream ends.
const ReasonStreamClosed = "connection closed before exit status known"

// ReasonCorrupted is reported for a corrupted capture.
const ReasonCorrupted = "end marker seen before start marker"

// Outcome is emitted exactly once per capture.
type Outcome struct {
	Kind     Kind
	Command  string
	Output   string
	ExitCode int
	Reason   string
}

// State is the capture state of one in-flight command. The zero value is an
// inactive capture. State is a value; transitions return the next state.
type State struct {
	Command    string
	Markers    Markers
	Buffer     string
	FoundStart bool
	Active     bool
}

// Arm returns a fresh active capture for command.
func Arm(command string, m Markers) State {
	return State{Command: command, Markers: m, Active: true}
}

// Feed appends chunk to the buffer and advances the capture. A non-nil
// Outcome means the capture is finished and the returned state is inactive.
func (s State) Feed(chunk string) (State, *Outcome) {
	if !s.Active {
		return s, nil
	}
	s.Buffer += chunk

	start := locate(s.Buffer, s.Markers.Start)
	if !s.FoundStart && start >= 0 {
		s.FoundStart = true
	}
	if !s.FoundStart {
		return s, nil
	}

	end := locate(s.Buffer, s.Markers.End)
	if end < 0 {
		return s, nil
	}
	if start < 0 || end < start {
		return s.finish(&Outcome{Kind: Corrupted, Command: s.Command, Reason: ReasonCorrupted})
	}

	m := exitCodePattern.FindStringSubmatch(s.Buffer[end+len(s.Markers.End):])
	if m == nil {
		return s, nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		// Out of int range; still the command's status, report it as failed.
		code = -1
	}

	raw := s.Buffer[start+len(s.Markers.Start) : end]
	return s.finish(&Outcome{
		Kind:     Completed,
		Command:  s.Command,
		Output:   strings.TrimSpace(raw),
		ExitCode: code,
	})
}

// Abort ends an active capture with reason. It returns a nil Outcome when the
// capture was not active.
func (s State) Abort(reason string) (State, *Outcome) {
	if !s.Active {
		return s, nil
	}
	return s.finish(&Outcome{Kind: Aborted, Command: s.Command, Reason: reason})
}

func (s State) finish(o *Outcome) (State, *Outcome) {
	return State{}, o
}

// locate returns the index of the first occurrence of marker that is real
// shell output rather than the terminal echo of the wire line. The echo of a
// marker is followed by the closing quote of the echo argument, or by a
// carriage return when readline wraps the line at the terminal width; real
// output is followed by a line break. An occurrence at the end of buf, or
// followed only by a trailing \r, is undecided and reported as absent until
// more data arrives.
func locate(buf, marker string) int {
	offset := 0
	for {
		i := strings.Index(buf[offset:], marker)
		if i < 0 {
			return -1
		}
		i += offset
		next := i + len(marker)
		rest := buf[next:]
		switch {
		case rest == "" || rest == "\r":
			return -1
		case strings.HasPrefix(rest, "\n"), strings.HasPrefix(rest, "\r\n"):
			return i
		}
		offset = next
	}
}
