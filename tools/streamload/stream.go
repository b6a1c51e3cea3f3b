package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// message is one server-sent event.
type message struct {
	id   string
	kind string
	data string
}

// readStream parses server-sent events from r and calls fn for each complete
// message. Comment lines (heartbeats) are skipped.
func readStream(r io.Reader, fn func(message)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur message
	var pending bool
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if pending {
				fn(cur)
			}
			cur, pending = message{}, false
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				cur.id = value
			case "event":
				cur.kind = value
			case "data":
				if cur.data != "" {
					cur.data += "\n"
				}
				cur.data += value
			}
			pending = true
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

type stats struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64

	mu     sync.Mutex
	byType map[string]int64
	lastID string
}

func newStats() *stats {
	return &stats{byType: make(map[string]int64)}
}

func (s *stats) observe(m message) {
	s.events.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := m.kind
	if kind == "" {
		kind = "message"
	}
	s.byType[kind]++
	if m.id != "" {
		s.lastID = m.id
	}
}

type statsSnapshot struct {
	connected, connectErrs, streamErrs, events int64
	byType                                     map[string]int64
	lastID                                     string
}

func (s *stats) snapshot() statsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := make(map[string]int64, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return statsSnapshot{
		connected:   s.connected.Load(),
		connectErrs: s.connectErrs.Load(),
		streamErrs:  s.streamErrs.Load(),
		events:      s.events.Load(),
		byType:      byType,
		lastID:      s.lastID,
	}
}

func (s statsSnapshot) String() string {
	return fmt.Sprintf("connected=%d connect_errs=%d stream_errs=%d events=%d last_id=%s",
		s.connected, s.connectErrs, s.streamErrs, s.events, s.lastID)
}
