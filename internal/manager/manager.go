// Package manager composes the supervision pipeline: the event bus, the
// process supervisor, the roster tracker, the auto-restart coordinator, the
// throttled metrics publisher, and the history sink. It is the single entry
// point embedders and the control API talk to.
package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/craftherd/internal/event"
	"github.com/loykin/craftherd/internal/history"
	"github.com/loykin/craftherd/internal/metrics"
	"github.com/loykin/craftherd/internal/restart"
	"github.com/loykin/craftherd/internal/supervisor"
)

const historyWriteTimeout = 3 * time.Second

// Options configure a Manager. Zero values select sensible defaults.
type Options struct {
	// Supervisor tunes process launch and per-run periodic work.
	Supervisor supervisor.Options
	// Launch seeds the default launch parameters.
	Launch supervisor.LaunchParams
	// AutoRestart is the initial crash-recovery policy.
	AutoRestart restart.Config
	// PersistAutoRestart stores policy changes durably. May be nil.
	PersistAutoRestart func(restart.Config) error
	// MetricsWindow overrides the metrics throttle window.
	MetricsWindow time.Duration
	// History receives lifecycle records. Nil means no history.
	History history.Sink
}

// Status is the composite snapshot served by the control API.
type Status struct {
	Server      supervisor.State        `json:"server"`
	AutoRestart event.AutoRestartStatus `json:"auto_restart"`
	PlayerCount int                     `json:"player_count"`
	PlayerNames []string                `json:"player_names"`
}

// Manager owns one supervised server and its supporting machinery.
type Manager struct {
	bus   *event.Bus
	sup   *supervisor.Supervisor
	coord *restart.Coordinator
	pub   *metrics.Publisher
	hist  history.Sink

	cancels []func()
	log     *slog.Logger
}

// New builds and wires a Manager. The returned Manager is ready; call Close
// to tear it down.
func New(opts Options) *Manager {
	bus := event.NewBus()
	m := &Manager{
		bus:  bus,
		hist: opts.History,
		log:  slog.Default().With("component", "manager"),
	}
	if m.hist == nil {
		m.hist = history.NopSink{}
	}

	m.sup = supervisor.New(bus, opts.Supervisor, opts.Launch)
	m.pub = metrics.NewPublisher(bus, opts.MetricsWindow, metrics.Sources{
		Process: m.sup.ProcessInfo,
		Roster:  m.sup.Tracker().Snapshot,
	})
	m.sup.SetPublisher(m.pub)
	// Roster churn requests a metrics publication; the throttle collapses
	// bursts into one snapshot per window.
	m.sup.Tracker().SetOnChange(m.pub.Tick)

	m.coord = restart.New(bus, opts.AutoRestart, opts.PersistAutoRestart, m.restartFallback)

	m.cancels = append(m.cancels,
		bus.Subscribe(event.TypeRestartRequested, m.onRestartRequested),
		bus.Subscribe(event.TypeStarted, func(event.Event) {
			st := m.sup.State()
			m.record(history.Event{Type: history.EventStart, PID: st.PID, Detail: st.LaunchArtifact})
		}),
		bus.Subscribe(event.TypeNormalExit, func(event.Event) {
			m.record(history.Event{Type: history.EventStop})
		}),
		bus.Subscribe(event.TypeCrashed, func(e event.Event) {
			if info, ok := e.Payload.(event.CrashInfo); ok {
				m.record(history.Event{
					Type:     history.EventCrash,
					PID:      info.PID,
					ExitCode: info.ExitCode,
					Signal:   info.Signal,
				})
			}
		}),
		bus.Subscribe(event.TypeAutoRestartStatus, func(e event.Event) {
			if st, ok := e.Payload.(event.AutoRestartStatus); ok && st.DisabledByCeiling {
				m.record(history.Event{Type: history.EventCeiling, Detail: st.Reason})
			}
		}),
	)
	return m
}

// Bus exposes the event bus for embedders that want to subscribe.
func (m *Manager) Bus() *event.Bus { return m.bus }

// Start launches the server. Zero-value params fall back to the configured
// defaults.
func (m *Manager) Start(p supervisor.LaunchParams) error { return m.sup.Start(p) }

// Stop requests a graceful shutdown.
func (m *Manager) Stop() error { return m.sup.Stop() }

// Kill forcefully terminates the server and resets the crash counter.
func (m *Manager) Kill() error { return m.sup.Kill() }

// SendCommand writes a console command to the server's stdin.
func (m *Manager) SendCommand(cmd string) error { return m.sup.SendCommand(cmd) }

// Status returns the composite server/policy/roster snapshot.
func (m *Manager) Status() Status {
	count, names := m.sup.Tracker().Snapshot()
	return Status{
		Server:      m.sup.State(),
		AutoRestart: m.coord.Status(),
		PlayerCount: count,
		PlayerNames: names,
	}
}

// Roster returns the current player count and names.
func (m *Manager) Roster() (int, []string) { return m.sup.Tracker().Snapshot() }

// SetLaunchDefaults records the launch parameters used by the next Start
// (and by restarts when the crash info lacks a target).
func (m *Manager) SetLaunchDefaults(p supervisor.LaunchParams) { m.sup.SetDefaults(p) }

// LaunchDefaults returns the recorded default launch parameters.
func (m *Manager) LaunchDefaults() supervisor.LaunchParams { return m.sup.Defaults() }

// AutoRestart returns the coordinator status.
func (m *Manager) AutoRestart() event.AutoRestartStatus { return m.coord.Status() }

// SetAutoRestart validates, persists, and applies a new policy.
func (m *Manager) SetAutoRestart(cfg restart.Config) error { return m.coord.SetConfig(cfg) }

// Close tears down the pipeline, killing a running server if any.
func (m *Manager) Close() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.coord.Close()
	m.sup.Close()
	m.pub.Close()
	if err := m.hist.Close(); err != nil {
		m.log.Warn("history close failed", "error", err)
	}
}

func (m *Manager) restartFallback() (event.RestartRequest, bool) {
	d := m.sup.Defaults()
	if d.TargetPath == "" {
		return event.RestartRequest{}, false
	}
	return event.RestartRequest{TargetPath: d.TargetPath, Port: d.Port, MaxMemoryGB: d.MaxMemoryGB}, true
}

func (m *Manager) onRestartRequested(e event.Event) {
	req, ok := e.Payload.(event.RestartRequest)
	if !ok {
		return
	}
	p := supervisor.LaunchParams{
		TargetPath:  req.TargetPath,
		Port:        req.Port,
		MaxMemoryGB: req.MaxMemoryGB,
	}
	if err := m.sup.Start(p); err != nil {
		m.log.Error("auto-restart failed", "target", p.TargetPath, "error", err)
		m.bus.Publish(event.Event{Type: event.TypeStatus, Payload: event.StatusStopped})
		return
	}
	metrics.IncRestart()
	m.record(history.Event{Type: history.EventRestart, PID: m.sup.State().PID})
}

func (m *Manager) record(e history.Event) {
	e.OccurredAt = time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()
	if err := m.hist.Send(ctx, e); err != nil {
		m.log.Warn("history write failed", "type", e.Type, "error", err)
	}
}
