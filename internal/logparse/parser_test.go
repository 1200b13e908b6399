package logparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	snapshots []snapshot
	joins     []string
	leaves    []string
	lines     []string
}

type snapshot struct {
	count    int
	names    []string
	hasNames bool
}

func (r *recordingSink) RosterSnapshot(count int, names []string, hasNames bool) {
	r.snapshots = append(r.snapshots, snapshot{count, names, hasNames})
}
func (r *recordingSink) PlayerJoined(name string) { r.joins = append(r.joins, name) }
func (r *recordingSink) PlayerLeft(name string)   { r.leaves = append(r.leaves, name) }
func (r *recordingSink) Line(raw string)          { r.lines = append(r.lines, raw) }

func TestParserRosterWithNames(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("There are 2 of a max of 20 players online: Alice, Bob\n"))

	assert.Len(t, sink.snapshots, 1)
	assert.Equal(t, 2, sink.snapshots[0].count)
	assert.Equal(t, []string{"Alice", "Bob"}, sink.snapshots[0].names)
	assert.True(t, sink.snapshots[0].hasNames)
	assert.Empty(t, sink.lines, "roster lines are consumed, not forwarded as log")
}

func TestParserRosterCountOnly(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("There are 3 of a max of 20 players online\n"))

	assert.Len(t, sink.snapshots, 1)
	assert.Equal(t, 3, sink.snapshots[0].count)
	assert.False(t, sink.snapshots[0].hasNames)
	assert.Empty(t, sink.snapshots[0].names)
}

func TestParserJoinAndLeave(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("Carol joined the game\nDave left the game\n"))

	assert.Equal(t, []string{"Carol"}, sink.joins)
	assert.Equal(t, []string{"Dave"}, sink.leaves)
	assert.Empty(t, sink.lines)
}

func TestParserPartialLinesAcrossChunks(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("Carol joined"))
	assert.Empty(t, sink.joins, "partial line must not be emitted")
	_, _ = p.Write([]byte(" the game\nplain "))
	assert.Equal(t, []string{"Carol"}, sink.joins)
	assert.Empty(t, sink.lines)
	_, _ = p.Write([]byte("text\n"))
	assert.Equal(t, []string{"plain text"}, sink.lines)
}

func TestParserFlushEmitsTrailingPartial(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("final words without newline"))
	assert.Empty(t, sink.lines)
	p.Flush()
	assert.Equal(t, []string{"final words without newline"}, sink.lines)
}

func TestParserCRLF(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("Eve joined the game\r\n"))
	assert.Equal(t, []string{"Eve"}, sink.joins)
}

func TestParserDedupesConsecutiveLines(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("spam\nspam\nspam\nother\nspam\n"))
	assert.Equal(t, []string{"spam", "other", "spam"}, sink.lines)
}

func TestParserDuplicateSnapshotProcessedWhenNoRequestPending(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	line := []byte("There are 1 of a max of 20 players online: Alice\n")
	_, _ = p.Write(line)
	_, _ = p.Write(line)
	assert.Len(t, sink.snapshots, 2)
}

func TestParserDuplicateSnapshotSuppressedWhilePending(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	p.SetRosterPending(func() bool { return true })
	line := []byte("There are 1 of a max of 20 players online: Alice\n")
	_, _ = p.Write(line)
	_, _ = p.Write(line)
	assert.Len(t, sink.snapshots, 1)
}

func TestParserGarbageLinesAreForwardedUnchanged(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("[12:00:01] [Server thread/INFO]: Done (3.14s)! For help, type \"help\"\n"))
	assert.Len(t, sink.lines, 1)
	assert.Empty(t, sink.snapshots)
}

func TestParserPrefixedRosterLineStillMatches(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(sink)
	_, _ = p.Write([]byte("[12:00:05] [Server thread/INFO]: There are 2 of a max of 20 players online: Alice, Bob\n"))
	assert.Len(t, sink.snapshots, 1)
	assert.Equal(t, []string{"Alice", "Bob"}, sink.snapshots[0].names)
}
