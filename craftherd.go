package craftherd

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/craftherd/internal/config"
	"github.com/loykin/craftherd/internal/event"
	"github.com/loykin/craftherd/internal/history"
	"github.com/loykin/craftherd/internal/logger"
	"github.com/loykin/craftherd/internal/manager"
	"github.com/loykin/craftherd/internal/metrics"
	"github.com/loykin/craftherd/internal/restart"
	"github.com/loykin/craftherd/internal/roster"
	iapi "github.com/loykin/craftherd/internal/server"
	"github.com/loykin/craftherd/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type LaunchParams = supervisor.LaunchParams

type ServerState = supervisor.State

type Status = manager.Status

type AutoRestartConfig = restart.Config

type AutoRestartStatus = event.AutoRestartStatus

type Event = event.Event

type EventType = event.Type

type HistorySink = history.Sink

type Options = manager.Options

// Sentinel errors returned by lifecycle operations.
var (
	ErrAlreadyRunning = supervisor.ErrAlreadyRunning
	ErrNotRunning     = supervisor.ErrNotRunning
)

type SupervisorOptions = supervisor.Options

type RosterOptions = roster.Options

type ConsoleLogConfig = logger.Config

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

func New(opts Options) *Manager { return &Manager{inner: manager.New(opts)} }

func (m *Manager) Start(p LaunchParams) error              { return m.inner.Start(p) }
func (m *Manager) Stop() error                             { return m.inner.Stop() }
func (m *Manager) Kill() error                             { return m.inner.Kill() }
func (m *Manager) SendCommand(cmd string) error            { return m.inner.SendCommand(cmd) }
func (m *Manager) Status() Status                          { return m.inner.Status() }
func (m *Manager) Roster() (int, []string)                 { return m.inner.Roster() }
func (m *Manager) SetLaunchDefaults(p LaunchParams)        { m.inner.SetLaunchDefaults(p) }
func (m *Manager) LaunchDefaults() LaunchParams            { return m.inner.LaunchDefaults() }
func (m *Manager) AutoRestart() AutoRestartStatus          { return m.inner.AutoRestart() }
func (m *Manager) SetAutoRestart(c AutoRestartConfig) error { return m.inner.SetAutoRestart(c) }
func (m *Manager) Subscribe(t EventType, fn func(Event)) func() {
	return m.inner.Bus().Subscribe(t, fn)
}
func (m *Manager) Close() { m.inner.Close() }

func LoadConfig(path string) (*cfg.FileConfig, error) { return cfg.Load(path) }

// SaveAutoRestart writes a changed auto-restart policy back into the config
// file at path.
func SaveAutoRestart(path string, c AutoRestartConfig) error {
	return cfg.SaveAutoRestart(path, c)
}

// SetupLogging installs the process-wide structured logger at the given
// level.
func SetupLogging(level string) { logger.Setup(level) }

// NewHistorySink opens a lifecycle history sink for the given DSN
// (postgres://... or a sqlite path). An empty DSN yields a no-op sink.
func NewHistorySink(dsn string) (HistorySink, error) {
	if dsn == "" {
		return history.NopSink{}, nil
	}
	return history.NewSQLSinkFromDSN(dsn)
}

// NewHTTPServer starts an HTTP server exposing the control API using the
// given manager.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It returns any immediate listen error; otherwise it runs
// the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
