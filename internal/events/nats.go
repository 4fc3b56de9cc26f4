package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "shelltabs.tabs"

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on <prefix>.<tabID>.
type NATSSink struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn
}

// NewNATSSink wraps an existing publisher.
func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

// ConnectNATS dials url and returns a sink owning the connection.
func ConnectNATS(url, prefix string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("shelltabs"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	s := NewNATSSink(conn, prefix)
	s.conn = conn
	return s, nil
}

// Subject returns the subject events of tabID are published on.
func (s *NATSSink) Subject(tabID string) string {
	return s.prefix + "." + subjectToken(tabID)
}

func (s *NATSSink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("encode event", slog.String("error", err.Error()))
		return
	}
	if err := s.pub.Publish(s.Subject(e.TabID), data); err != nil {
		slog.Warn("publish event",
			slog.String("tab_id", e.TabID),
			slog.String("type", string(e.Type)),
			slog.String("error", err.Error()))
	}
}

// Close drains the connection when the sink owns one.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// subjectToken makes tabID safe as a single subject token.
func subjectToken(tabID string) string {
	if tabID == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, tabID)
}
