package roster

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cmdRecorder struct {
	mu   sync.Mutex
	cmds []string
}

func (c *cmdRecorder) send(cmd string) error {
	c.mu.Lock()
	c.cmds = append(c.cmds, cmd)
	c.mu.Unlock()
	return nil
}

func (c *cmdRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cmds)
}

func TestSnapshotWithNamesReplacesWholesale(t *testing.T) {
	tr := New(nil, Options{})
	tr.ApplySnapshot(5, []string{"Old"}, true)
	tr.ApplySnapshot(2, []string{"Alice", "Bob"}, true)

	count, names := tr.Snapshot()
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"Alice", "Bob"}, names)
}

func TestCountOnlySnapshotKeepsNamesIffLengthMatches(t *testing.T) {
	tr := New(nil, Options{})
	tr.ApplySnapshot(2, []string{"Alice", "Bob"}, true)

	// Matching count keeps names.
	tr.ApplySnapshot(2, nil, false)
	count, names := tr.Snapshot()
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"Alice", "Bob"}, names)

	// Mismatching count discards names but trusts the count.
	tr.ApplySnapshot(3, nil, false)
	count, names = tr.Snapshot()
	assert.Equal(t, 3, count)
	assert.Empty(t, names)
}

func TestJoinLeaveKeepCountEqualToNamesLength(t *testing.T) {
	tr := New(nil, Options{})
	steps := []struct {
		join bool
		name string
	}{
		{true, "Alice"}, {true, "Bob"}, {false, "Alice"},
		{true, "Carol"}, {false, "Bob"}, {false, "Carol"},
		{false, "Nobody"}, {true, "Dave"},
	}
	for _, s := range steps {
		if s.join {
			tr.ApplyJoin(s.name)
		} else {
			tr.ApplyLeave(s.name)
		}
		count, names := tr.Snapshot()
		require.Equal(t, len(names), count, "after %v %s", s.join, s.name)
	}
}

func TestJoinPreservesInsertionOrder(t *testing.T) {
	tr := New(nil, Options{})
	tr.ApplySnapshot(2, []string{"Alice", "Bob"}, true)
	tr.ApplyJoin("Carol")

	count, names := tr.Snapshot()
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names)
}

func TestDuplicateJoinIsIgnored(t *testing.T) {
	rec := &cmdRecorder{}
	tr := New(rec.send, Options{})
	tr.ApplyJoin("Alice")
	tr.ApplyJoin("Alice")

	count, names := tr.Snapshot()
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"Alice"}, names)
	assert.Equal(t, 1, rec.count(), "only the first join requests a reconcile")
}

func TestJoinSendsSingleImmediateRequestWhenNotRateLimited(t *testing.T) {
	rec := &cmdRecorder{}
	tr := New(rec.send, Options{MinRequestInterval: time.Hour})
	tr.ApplyJoin("Alice")
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, "list", rec.cmds[0])
	assert.True(t, tr.RequestPending())

	// Second join inside the rate-limit window does not send again.
	tr.ApplyJoin("Bob")
	assert.Equal(t, 1, rec.count())
}

func TestLeaveTriggersAcceleratedCycle(t *testing.T) {
	rec := &cmdRecorder{}
	tr := New(rec.send, Options{
		MinRequestInterval: time.Hour,
		AccelDelays:        []time.Duration{5 * time.Millisecond, 15 * time.Millisecond},
	})
	tr.ApplySnapshot(1, []string{"Alice"}, true)
	tr.ApplyLeave("Alice")

	// Accelerated follow-ups bypass the rate limit.
	assert.Eventually(t, func() bool { return rec.count() >= 2 },
		time.Second, 2*time.Millisecond)
}

func TestJoinDuringAcceleratedCycleDoesNotRequest(t *testing.T) {
	rec := &cmdRecorder{}
	tr := New(rec.send, Options{
		MinRequestInterval: time.Millisecond,
		AccelDelays:        []time.Duration{time.Hour},
	})
	tr.ApplySnapshot(1, []string{"Alice"}, true)
	tr.ApplyLeave("Alice")
	tr.ApplyJoin("Bob")
	assert.Equal(t, 0, rec.count())
	tr.Reset()
}

func TestPollRespectsRateLimit(t *testing.T) {
	rec := &cmdRecorder{}
	tr := New(rec.send, Options{MinRequestInterval: time.Hour})
	tr.Poll()
	tr.Poll()
	tr.Poll()
	assert.Equal(t, 1, rec.count())
}

func TestSnapshotClearsPending(t *testing.T) {
	rec := &cmdRecorder{}
	tr := New(rec.send, Options{MinRequestInterval: time.Hour})
	tr.Poll()
	require.True(t, tr.RequestPending())
	tr.ApplySnapshot(0, nil, false)
	assert.False(t, tr.RequestPending())
}

func TestResetClearsRosterAndTimers(t *testing.T) {
	rec := &cmdRecorder{}
	tr := New(rec.send, Options{
		MinRequestInterval: time.Hour,
		AccelDelays:        []time.Duration{50 * time.Millisecond},
	})
	tr.ApplySnapshot(2, []string{"Alice", "Bob"}, true)
	tr.ApplyLeave("Bob")
	tr.Reset()

	count, names := tr.Snapshot()
	assert.Equal(t, 0, count)
	assert.Empty(t, names)
	assert.False(t, tr.RequestPending())

	before := rec.count()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, before, rec.count(), "canceled follow-ups must not fire")
}

func TestOnChangeFiresOnMutations(t *testing.T) {
	tr := New(nil, Options{})
	n := 0
	tr.SetOnChange(func() { n++ })
	tr.ApplySnapshot(1, []string{"Alice"}, true)
	tr.ApplyJoin("Bob")
	tr.ApplyLeave("Alice")
	tr.Reset()
	assert.Equal(t, 3, n)
	tr.Reset()
}
