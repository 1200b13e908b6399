package metrics

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/craftherd/internal/event"
)

type snapTrap struct {
	mu    sync.Mutex
	snaps []event.MetricsSnapshot
}

func trapSnapshots(bus *event.Bus) *snapTrap {
	tr := &snapTrap{}
	bus.Subscribe(event.TypeMetrics, func(e event.Event) {
		tr.mu.Lock()
		tr.snaps = append(tr.snaps, e.Payload.(event.MetricsSnapshot))
		tr.mu.Unlock()
	})
	return tr
}

func (tr *snapTrap) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.snaps)
}

func (tr *snapTrap) last() event.MetricsSnapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.snaps[len(tr.snaps)-1]
}

func TestManyTicksInsideWindowCollapseToOnePublish(t *testing.T) {
	bus := event.NewBus()
	tr := trapSnapshots(bus)

	var mu sync.Mutex
	count := 0
	p := NewPublisher(bus, 50*time.Millisecond, Sources{
		Roster: func() (int, []string) {
			mu.Lock()
			defer mu.Unlock()
			return count, nil
		},
	})
	defer p.Close()

	for i := 0; i < 100; i++ {
		mu.Lock()
		count = i + 1
		mu.Unlock()
		p.Tick()
	}
	require.Eventually(t, func() bool { return tr.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, tr.count(), "ticks inside the window must collapse")
	assert.Equal(t, 100, tr.last().PlayerCount, "publication reflects the latest values")
}

func TestTicksInSeparateWindowsPublishSeparately(t *testing.T) {
	bus := event.NewBus()
	tr := trapSnapshots(bus)
	p := NewPublisher(bus, 20*time.Millisecond, Sources{})
	defer p.Close()

	p.Tick()
	require.Eventually(t, func() bool { return tr.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	p.Tick()
	require.Eventually(t, func() bool { return tr.count() == 2 }, time.Second, time.Millisecond)
}

func TestPublishZeroBypassesThrottle(t *testing.T) {
	bus := event.NewBus()
	tr := trapSnapshots(bus)
	p := NewPublisher(bus, time.Hour, Sources{
		Roster: func() (int, []string) { return 7, []string{"Alice"} },
	})
	defer p.Close()

	p.Tick() // pending for an hour
	p.PublishZero()
	require.Equal(t, 1, tr.count())
	assert.Equal(t, event.MetricsSnapshot{}, tr.last())

	// The pending tick was discarded with the timer.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, tr.count())
}

func TestCollectOwnProcess(t *testing.T) {
	bus := event.NewBus()
	started := time.Now().Add(-90 * time.Second)
	p := NewPublisher(bus, time.Millisecond, Sources{
		Process: func() (int, time.Time, int, bool) { return os.Getpid(), started, 2, true },
		Roster:  func() (int, []string) { return 1, []string{"Alice"} },
	})
	defer p.Close()

	snap := p.collect()
	assert.Equal(t, 1, snap.PlayerCount)
	assert.Equal(t, float64(2*1024), snap.MaxMemMB)
	assert.Greater(t, snap.MemUsedMB, 0.0)
	assert.NotEmpty(t, snap.Uptime)
}

func TestCollectNotRunningIsAllZero(t *testing.T) {
	bus := event.NewBus()
	p := NewPublisher(bus, time.Millisecond, Sources{
		Process: func() (int, time.Time, int, bool) { return 0, time.Time{}, 4, false },
		Roster:  func() (int, []string) { return 3, []string{"a", "b", "c"} },
	})
	defer p.Close()
	assert.Equal(t, event.MetricsSnapshot{}, p.collect())
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{3*time.Hour + 4*time.Minute + 5*time.Second, "3h 4m 5s"},
		{50 * time.Hour, "2d 2h 0m 0s"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatUptime(c.d), c.d.String())
	}
}
