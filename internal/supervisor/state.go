package supervisor

import (
	"errors"
	"time"
)

// Machine states of the supervised server. Exactly one is active at a time
// and transitions are strictly ordered: idle -> starting -> running ->
// {stopped|crashed} -> idle.
const (
	StateIdle     = "idle"
	StateStarting = "starting"
	StateRunning  = "running"
	StateStopped  = "stopped"
	StateCrashed  = "crashed"
)

var (
	// ErrAlreadyRunning rejects a start while a server process is tracked.
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning rejects stop/kill/command when no process is tracked.
	ErrNotRunning = errors.New("server not running")
)

// State is the externally consumable snapshot of the tracked server process.
// All fields except Machine are zero when no process is tracked.
type State struct {
	Running        bool      `json:"running"`
	PID            int       `json:"pid"`
	StartedAt      time.Time `json:"started_at"`
	TargetPath     string    `json:"target_path"`
	Port           int       `json:"port"`
	MaxMemoryGB    int       `json:"max_memory_gb"`
	LaunchArtifact string    `json:"launch_artifact"`
	RunID          string    `json:"run_id"`
	Machine        string    `json:"state"`
}

// LaunchParams are the parameters of one server start.
type LaunchParams struct {
	TargetPath  string `json:"target_path"`
	Port        int    `json:"port"`
	MaxMemoryGB int    `json:"max_memory_gb"`
	// Artifact optionally names the jar to launch, relative to TargetPath or
	// absolute. Empty means resolve by scan.
	Artifact string `json:"artifact,omitempty"`
}
