package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "starts_total",
			Help:      "Number of successful server starts.",
		},
	)
	serverStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of deliberate stops and clean exits.",
		},
	)
	serverCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "crashes_total",
			Help:      "Number of abnormal exits classified as crashes.",
		},
	)
	serverRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "restarts_total",
			Help:      "Number of auto-restart requests issued.",
		},
	)
	serverCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of the server process.",
		},
	)
	serverMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "memory_mb",
			Help:      "Resident memory of the server process in MB.",
		},
	)
	playerCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "player_count",
			Help:      "Players currently online per the tracked roster.",
		},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "craftherd",
			Subsystem: "server",
			Name:      "current_state",
			Help:      "Current state of the server (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverStarts, serverStops, serverCrashes, serverRestarts,
		serverCPUPercent, serverMemoryMB, playerCount, currentStates}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		serverStarts.Inc()
	}
}
func IncStop() {
	if regOK.Load() {
		serverStops.Inc()
	}
}
func IncCrash() {
	if regOK.Load() {
		serverCrashes.Inc()
	}
}
func IncRestart() {
	if regOK.Load() {
		serverRestarts.Inc()
	}
}
func SetUsage(cpuPercent, memoryMB float64) {
	if regOK.Load() {
		serverCPUPercent.Set(cpuPercent)
		serverMemoryMB.Set(memoryMB)
	}
}
func SetPlayerCount(n int) {
	if regOK.Load() {
		playerCount.Set(float64(n))
	}
}
func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(state).Set(value)
	}
}
