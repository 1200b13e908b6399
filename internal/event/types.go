package event

// Type names a bus topic. One payload shape is associated with each type;
// subscribers assert the payload they expect.
type Type string

const (
	// TypeStarted is published after a successful spawn. No payload.
	TypeStarted Type = "started"
	// TypeNormalExit is published on a deliberate stop or a clean exit. No payload.
	TypeNormalExit Type = "normal-exit"
	// TypeCrashed carries a CrashInfo payload.
	TypeCrashed Type = "crashed"
	// TypeKilled is published after a manual forceful kill, in addition to
	// TypeNormalExit. No payload.
	TypeKilled Type = "killed"
	// TypeRestartRequested carries a RestartRequest payload.
	TypeRestartRequested Type = "restart-requested"
	// TypeStatus carries a Status payload.
	TypeStatus Type = "status"
	// TypeLog carries a raw console line as a string payload.
	TypeLog Type = "log"
	// TypeMetrics carries a MetricsSnapshot payload.
	TypeMetrics Type = "metrics"
	// TypeAutoRestartStatus carries an AutoRestartStatus payload.
	TypeAutoRestartStatus Type = "auto-restart-status"
)

// Status values published under TypeStatus.
type Status string

const (
	StatusRunning    Status = "running"
	StatusStopped    Status = "stopped"
	StatusRestarting Status = "restarting"
)

// CrashInfo is the snapshot of an abnormally terminated run, captured from the
// process metadata before the supervisor clears its state. It is the payload
// of TypeCrashed and the input for scheduling a restart.
type CrashInfo struct {
	TargetPath     string `json:"target_path"`
	Port           int    `json:"port"`
	MaxMemoryGB    int    `json:"max_memory_gb"`
	LaunchArtifact string `json:"launch_artifact"`
	PID            int    `json:"pid"`
	ExitCode       int    `json:"exit_code"`
	Signal         string `json:"signal,omitempty"`
}

// RestartRequest asks the supervisor to start the server again with the
// parameters of the crashed run.
type RestartRequest struct {
	TargetPath  string `json:"target_path"`
	Port        int    `json:"port"`
	MaxMemoryGB int    `json:"max_memory_gb"`
}

// MetricsSnapshot is the throttled resource/roster report published under
// TypeMetrics. All fields are zero when no process is running.
type MetricsSnapshot struct {
	CPUPercent  float64  `json:"cpu_percent"`
	MemUsedMB   float64  `json:"mem_used_mb"`
	MaxMemMB    float64  `json:"max_mem_mb"`
	Uptime      string   `json:"uptime"`
	PlayerCount int      `json:"player_count"`
	PlayerNames []string `json:"player_names"`
}

// AutoRestartStatus reports the coordinator configuration and crash counter.
type AutoRestartStatus struct {
	Enabled           bool   `json:"enabled"`
	DelaySeconds      int    `json:"delay_seconds"`
	MaxCrashes        int    `json:"max_crashes"`
	CrashCount        int    `json:"crash_count"`
	DisabledByCeiling bool   `json:"disabled_by_ceiling"`
	Reason            string `json:"reason,omitempty"`
}
