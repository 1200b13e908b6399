// Package logparse turns the raw console stream of the game server into
// structured events. The console is a best-effort text protocol: a handful of
// known line shapes carry roster information, everything else is opaque log
// text and is forwarded unchanged.
package logparse

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Pattern grammar for roster-bearing console lines. Keep these as named
// constants so the grammar can be audited and tested on its own.
const (
	// rosterExpr matches the response to a "list" command.
	// Group 1: online count. Group 2: max players. Group 3: optional
	// comma-separated player names (empty when the server omits the list).
	rosterExpr = `There are (\d+) of a max of (\d+) players online:?\s*(.*)$`
	// joinExpr matches a player connecting. Group 1: player name.
	joinExpr = `(\S+) joined the game$`
	// leaveExpr matches a player disconnecting. Group 1: player name.
	leaveExpr = `(\S+) left the game$`
)

var (
	reRoster = regexp.MustCompile(rosterExpr)
	reJoin   = regexp.MustCompile(joinExpr)
	reLeave  = regexp.MustCompile(leaveExpr)
)

// Sink receives classified console output. Roster-bearing lines go to the
// roster methods and are not repeated through Line.
type Sink interface {
	RosterSnapshot(count int, names []string, hasNames bool)
	PlayerJoined(name string)
	PlayerLeft(name string)
	Line(raw string)
}

// Parser reassembles arbitrary byte chunks into complete lines and classifies
// them. It implements io.Writer so it can be attached directly as a process
// stdout/stderr destination. A trailing segment without a terminator is held
// back until more bytes arrive or Flush is called.
type Parser struct {
	mu       sync.Mutex
	buf      []byte
	lastLine string
	sink     Sink
	// rosterPending reports whether a roster request is in flight; it relaxes
	// the duplicate-line suppression for snapshot lines.
	rosterPending func() bool
}

func NewParser(sink Sink) *Parser {
	return &Parser{sink: sink, rosterPending: func() bool { return false }}
}

// SetRosterPending installs the probe used to decide whether duplicate
// snapshot lines are command echo or a genuine response.
func (p *Parser) SetRosterPending(fn func() bool) {
	p.mu.Lock()
	if fn != nil {
		p.rosterPending = fn
	}
	p.mu.Unlock()
}

// Write consumes a raw chunk. Only fully terminated lines are classified;
// the remainder is buffered. Never returns an error.
func (p *Parser) Write(chunk []byte) (int, error) {
	p.mu.Lock()
	p.buf = append(p.buf, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(p.buf[:i], "\r"))
		p.buf = p.buf[i+1:]
		lines = append(lines, line)
	}
	p.mu.Unlock()

	for _, line := range lines {
		p.process(line)
	}
	return len(chunk), nil
}

// Flush emits any buffered partial content as a final line and resets the
// duplicate-suppression state. Call it when the stream ends.
func (p *Parser) Flush() {
	p.mu.Lock()
	rest := strings.TrimRight(string(p.buf), "\r")
	p.buf = nil
	p.mu.Unlock()
	if rest != "" {
		p.process(rest)
	}
	p.mu.Lock()
	p.lastLine = ""
	p.mu.Unlock()
}

func (p *Parser) process(line string) {
	if line == "" {
		return
	}
	p.mu.Lock()
	dup := line == p.lastLine
	p.lastLine = line
	pending := p.rosterPending()
	p.mu.Unlock()

	if m := reRoster.FindStringSubmatch(line); m != nil {
		// Duplicate snapshots are command echo only while a request of ours
		// is in flight; otherwise process them normally.
		if dup && pending {
			return
		}
		count, _ := strconv.Atoi(m[1])
		names := splitNames(m[3])
		p.sink.RosterSnapshot(count, names, len(names) > 0)
		return
	}
	if dup {
		return
	}
	if m := reJoin.FindStringSubmatch(line); m != nil {
		p.sink.PlayerJoined(m[1])
		return
	}
	if m := reLeave.FindStringSubmatch(line); m != nil {
		p.sink.PlayerLeft(m[1])
		return
	}
	p.sink.Line(line)
}

func splitNames(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if n := strings.TrimSpace(part); n != "" {
			names = append(names, n)
		}
	}
	return names
}
