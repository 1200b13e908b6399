// Package restart implements the crash/auto-restart policy: a bounded-retry
// circuit breaker around the supervisor. Crashes increment a counter that
// persists across restarts within the session; reaching the configured
// ceiling disables the policy until it is explicitly re-enabled.
package restart

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/craftherd/internal/event"
)

// Config bounds. Values outside these ranges are rejected, not clamped.
const (
	MinDelaySeconds = 5
	MaxDelaySeconds = 300
	MinCrashCeiling = 1
	MaxCrashCeiling = 10
)

// Config is the persisted auto-restart policy.
type Config struct {
	Enabled      bool `mapstructure:"enabled" json:"enabled"`
	DelaySeconds int  `mapstructure:"delay_seconds" json:"delay_seconds"`
	MaxCrashes   int  `mapstructure:"max_crashes" json:"max_crashes"`
}

// Validate checks the configured bounds.
func (c Config) Validate() error {
	if c.DelaySeconds < MinDelaySeconds || c.DelaySeconds > MaxDelaySeconds {
		return fmt.Errorf("delay_seconds must be in [%d,%d], got %d", MinDelaySeconds, MaxDelaySeconds, c.DelaySeconds)
	}
	if c.MaxCrashes < MinCrashCeiling || c.MaxCrashes > MaxCrashCeiling {
		return fmt.Errorf("max_crashes must be in [%d,%d], got %d", MinCrashCeiling, MaxCrashCeiling, c.MaxCrashes)
	}
	return nil
}

// Coordinator reacts to lifecycle events on the bus. On a crash it schedules
// a one-shot restart request after the configured delay, unless the crash
// ceiling has been reached. A normal exit or a manual kill cancels any
// pending restart; a manual kill additionally resets the crash counter.
type Coordinator struct {
	mu        sync.Mutex
	cfg       Config
	crashes   int
	ceilinged bool
	timer     *time.Timer

	bus     *event.Bus
	persist func(Config) error
	// fallback supplies the last-known launch parameters when the captured
	// crash info lacks a usable target path.
	fallback func() (event.RestartRequest, bool)
	cancels  []func()
	log      *slog.Logger
}

// New wires a Coordinator to the bus. The initial cfg is applied as-is: a
// zero-value cfg leaves the policy disabled with no ceiling. persist and
// fallback may be nil.
func New(bus *event.Bus, cfg Config, persist func(Config) error, fallback func() (event.RestartRequest, bool)) *Coordinator {
	c := &Coordinator{
		bus:      bus,
		cfg:      cfg,
		persist:  persist,
		fallback: fallback,
		log:      slog.Default().With("component", "autorestart"),
	}
	c.cancels = append(c.cancels,
		bus.Subscribe(event.TypeCrashed, c.onCrashed),
		bus.Subscribe(event.TypeNormalExit, func(event.Event) { c.cancelPending() }),
		bus.Subscribe(event.TypeKilled, func(event.Event) { c.onKilled() }),
	)
	return c
}

// Close cancels subscriptions and any pending restart timer.
func (c *Coordinator) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancelPending()
}

// Status reports the current policy state and crash counter.
func (c *Coordinator) Status() event.AutoRestartStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// statusLocked must be called with c.mu held.
func (c *Coordinator) statusLocked() event.AutoRestartStatus {
	st := event.AutoRestartStatus{
		Enabled:           c.cfg.Enabled && !c.ceilinged,
		DelaySeconds:      c.cfg.DelaySeconds,
		MaxCrashes:        c.cfg.MaxCrashes,
		CrashCount:        c.crashes,
		DisabledByCeiling: c.ceilinged,
	}
	if c.ceilinged {
		st.Reason = fmt.Sprintf("auto-restart disabled: %d crashes reached the ceiling of %d", c.crashes, c.cfg.MaxCrashes)
	}
	return st
}

// CrashCount returns the current crash counter.
func (c *Coordinator) CrashCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crashes
}

// Config returns a copy of the active policy.
func (c *Coordinator) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig validates, persists, and applies a new policy. Enabling resets
// the crash counter and clears the ceiling latch; disabling cancels any
// pending restart.
func (c *Coordinator) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.persist != nil {
		if err := c.persist(cfg); err != nil {
			return fmt.Errorf("persist auto-restart config: %w", err)
		}
	}
	c.mu.Lock()
	c.cfg = cfg
	if cfg.Enabled {
		c.crashes = 0
		c.ceilinged = false
	} else {
		c.stopTimerLocked()
	}
	st := c.statusLocked()
	c.mu.Unlock()
	c.bus.Publish(event.Event{Type: event.TypeAutoRestartStatus, Payload: st})
	return nil
}

func (c *Coordinator) onCrashed(e event.Event) {
	info, ok := e.Payload.(event.CrashInfo)
	if !ok {
		return
	}
	c.mu.Lock()
	c.stopTimerLocked()
	c.crashes++
	// A non-positive ceiling means no ceiling was configured.
	if c.cfg.MaxCrashes > 0 && c.crashes >= c.cfg.MaxCrashes {
		c.ceilinged = true
		st := c.statusLocked()
		c.mu.Unlock()
		c.log.Warn("crash ceiling reached, auto-restart disabled",
			"crashes", st.CrashCount, "ceiling", st.MaxCrashes)
		c.bus.Publish(event.Event{Type: event.TypeAutoRestartStatus, Payload: st})
		return
	}
	if !c.cfg.Enabled || c.ceilinged {
		st := c.statusLocked()
		c.mu.Unlock()
		c.bus.Publish(event.Event{Type: event.TypeAutoRestartStatus, Payload: st})
		return
	}
	delay := time.Duration(c.cfg.DelaySeconds) * time.Second
	c.timer = time.AfterFunc(delay, func() { c.fire(info) })
	st := c.statusLocked()
	c.mu.Unlock()
	c.log.Info("restart scheduled", "delay", delay, "crashes", st.CrashCount, "ceiling", st.MaxCrashes)
	c.bus.Publish(event.Event{Type: event.TypeAutoRestartStatus, Payload: st})
}

func (c *Coordinator) fire(info event.CrashInfo) {
	c.mu.Lock()
	c.timer = nil
	armed := c.cfg.Enabled && !c.ceilinged
	c.mu.Unlock()
	// The policy may have been disabled between scheduling and expiry.
	if !armed {
		return
	}
	req := event.RestartRequest{
		TargetPath:  info.TargetPath,
		Port:        info.Port,
		MaxMemoryGB: info.MaxMemoryGB,
	}
	if req.TargetPath == "" {
		fb, ok := event.RestartRequest{}, false
		if c.fallback != nil {
			fb, ok = c.fallback()
		}
		if !ok || fb.TargetPath == "" {
			c.log.Error("restart aborted: no usable target path")
			c.bus.Publish(event.Event{Type: event.TypeLog, Payload: "auto-restart aborted: no usable target path"})
			return
		}
		req = fb
	}
	c.bus.Publish(event.Event{Type: event.TypeStatus, Payload: event.StatusRestarting})
	c.bus.Publish(event.Event{Type: event.TypeRestartRequested, Payload: req})
}

func (c *Coordinator) onKilled() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.crashes = 0
	c.ceilinged = false
	st := c.statusLocked()
	c.mu.Unlock()
	c.bus.Publish(event.Event{Type: event.TypeAutoRestartStatus, Payload: st})
}

func (c *Coordinator) cancelPending() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()
}

// stopTimerLocked must be called with c.mu held.
func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
