package metrics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/craftherd/internal/event"
)

// DefaultThrottleWindow caps metrics publication frequency.
const DefaultThrottleWindow = 2 * time.Second

// Sources supplies the live data a snapshot is built from. Process reports
// the supervised PID and run metadata; Roster reports the tracked players.
type Sources struct {
	Process func() (pid int, startedAt time.Time, maxMemGB int, running bool)
	Roster  func() (count int, names []string)
}

// Publisher emits throttled MetricsSnapshot events. Any number of tick
// requests inside the throttle window collapse into a single publication at
// window expiry, built from the values current at that moment. A zero
// snapshot bypasses the throttle entirely so consumers get immediate reset
// feedback when the server goes down.
type Publisher struct {
	mu      sync.Mutex
	bus     *event.Bus
	window  time.Duration
	timer   *time.Timer
	lastPub time.Time
	sources Sources
	log     *slog.Logger
}

func NewPublisher(bus *event.Bus, window time.Duration, sources Sources) *Publisher {
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &Publisher{
		bus:     bus,
		window:  window,
		sources: sources,
		// Seed lastPub so the very first burst also collapses at window
		// expiry instead of publishing immediately.
		lastPub: time.Now(),
		log:     slog.Default().With("component", "metrics"),
	}
}

// Tick requests a publication. The actual emit happens at throttle-window
// expiry with the values gathered at that time.
func (p *Publisher) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		return
	}
	delay := p.window - time.Since(p.lastPub)
	if delay < 0 {
		delay = 0
	}
	p.timer = time.AfterFunc(delay, p.emit)
}

// PublishZero immediately emits an all-zero snapshot, bypassing the throttle,
// and discards any pending tick.
func (p *Publisher) PublishZero() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.lastPub = time.Now()
	p.mu.Unlock()

	SetUsage(0, 0)
	SetPlayerCount(0)
	p.bus.Publish(event.Event{Type: event.TypeMetrics, Payload: event.MetricsSnapshot{}})
}

// Close drops any pending publication.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
}

func (p *Publisher) emit() {
	p.mu.Lock()
	p.timer = nil
	p.lastPub = time.Now()
	p.mu.Unlock()

	snap := p.collect()
	SetUsage(snap.CPUPercent, snap.MemUsedMB)
	SetPlayerCount(snap.PlayerCount)
	p.bus.Publish(event.Event{Type: event.TypeMetrics, Payload: snap})
}

func (p *Publisher) collect() event.MetricsSnapshot {
	var snap event.MetricsSnapshot
	if p.sources.Roster != nil {
		snap.PlayerCount, snap.PlayerNames = p.sources.Roster()
	}
	if p.sources.Process == nil {
		return snap
	}
	pid, startedAt, maxMemGB, running := p.sources.Process()
	if !running || pid <= 0 {
		return event.MetricsSnapshot{}
	}
	snap.MaxMemMB = float64(maxMemGB) * 1024
	snap.Uptime = FormatUptime(time.Since(startedAt))

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		p.log.Debug("process handle unavailable", "pid", pid, "error", err)
		return snap
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	} else {
		p.log.Debug("cpu sample failed", "pid", pid, "error", err)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		snap.MemUsedMB = float64(mem.RSS) / 1024 / 1024
	} else {
		p.log.Debug("memory sample failed", "pid", pid, "error", err)
	}
	return snap
}

// FormatUptime renders a duration as "2d 3h 4m 5s", omitting leading zero
// units.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
