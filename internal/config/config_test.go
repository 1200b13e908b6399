package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/craftherd/internal/restart"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "craftherd.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFullConfig(t *testing.T) {
	p := writeConfig(t, `
[server]
target_path = "/srv/mc"
port = 25570
max_memory_gb = 8
artifact = "paper.jar"
java_bin = "/usr/bin/java"

[autorestart]
enabled = true
delay_seconds = 30
max_crashes = 5

[roster]
poll_interval = "45s"
min_request_interval = "15s"

[metrics]
interval = "10s"
throttle = "3s"

[log]
dir = "/var/log/craftherd"
level = "debug"

[history]
dsn = "sqlite:///var/lib/craftherd/history.db"

[http]
listen = "0.0.0.0:8420"
base_path = "/craftherd"
`)
	fc, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "/srv/mc", fc.Server.TargetPath)
	require.Equal(t, 25570, fc.Server.Port)
	require.Equal(t, 8, fc.Server.MaxMemoryGB)
	require.Equal(t, "paper.jar", fc.Server.Artifact)
	require.True(t, fc.AutoRestart.Enabled)
	require.Equal(t, 30, fc.AutoRestart.DelaySeconds)
	require.Equal(t, 5, fc.AutoRestart.MaxCrashes)
	require.Equal(t, 45*time.Second, fc.Roster.PollInterval)
	require.Equal(t, 3*time.Second, fc.Metrics.Throttle)
	require.Equal(t, "debug", fc.Log.Level)
	require.Equal(t, "sqlite:///var/lib/craftherd/history.db", fc.History.DSN)
	require.Equal(t, "0.0.0.0:8420", fc.HTTP.Listen)
}

func TestLoadAppliesDefaults(t *testing.T) {
	p := writeConfig(t, `
[server]
target_path = "/srv/mc"
`)
	fc, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, DefaultPort, fc.Server.Port)
	require.Equal(t, DefaultMaxMemoryGB, fc.Server.MaxMemoryGB)
	require.Equal(t, DefaultHTTPListen, fc.HTTP.Listen)
	require.False(t, fc.AutoRestart.Enabled)
}

func TestLoadRejectsMissingTarget(t *testing.T) {
	p := writeConfig(t, `
[server]
port = 25565
`)
	_, err := Load(p)
	require.ErrorContains(t, err, "target_path")
}

func TestLoadRejectsOutOfBoundsPolicy(t *testing.T) {
	p := writeConfig(t, `
[server]
target_path = "/srv/mc"

[autorestart]
enabled = true
delay_seconds = 2
max_crashes = 3
`)
	_, err := Load(p)
	require.ErrorContains(t, err, "delay_seconds")
}

func TestSaveAutoRestartRoundTrips(t *testing.T) {
	p := writeConfig(t, `
[server]
target_path = "/srv/mc"

[autorestart]
enabled = false
delay_seconds = 10
max_crashes = 3
`)
	cfg := restart.Config{Enabled: true, DelaySeconds: 60, MaxCrashes: 7}
	require.NoError(t, SaveAutoRestart(p, cfg))

	fc, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, cfg, fc.AutoRestart)
	// Other sections survive the rewrite.
	require.Equal(t, "/srv/mc", fc.Server.TargetPath)
}
