// Package supervisor owns the game-server child process: spawning it with
// the right resource parameters, feeding its console through the log parser,
// classifying its exit, and publishing lifecycle events on the bus. It is
// the only component that touches the process handle.
package supervisor

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/craftherd/internal/event"
	"github.com/loykin/craftherd/internal/logger"
	"github.com/loykin/craftherd/internal/logparse"
	"github.com/loykin/craftherd/internal/metrics"
	"github.com/loykin/craftherd/internal/roster"
)

// Defaults for Options zero values.
const (
	DefaultJavaBin            = "java"
	DefaultRunIDProperty      = "craftherd.run.id"
	DefaultStopStatusDelay    = 2 * time.Second
	DefaultRosterPollInterval = 30 * time.Second
	DefaultMetricsInterval    = 5 * time.Second
)

// Options tune process launch and the periodic work attached to a run.
type Options struct {
	// JavaBin is the runtime binary to spawn. Tests point this at a script.
	JavaBin string
	// RunIDProperty is the -D system property carrying the generated run id.
	RunIDProperty string
	// StopStatusDelay delays the duplicate status notification after a stop.
	StopStatusDelay time.Duration
	// RosterPollInterval is the slow roster poll cadence while running.
	RosterPollInterval time.Duration
	// MetricsInterval is the periodic metrics tick cadence while running.
	MetricsInterval time.Duration
	// Roster tunes roster request scheduling.
	Roster roster.Options
	// ConsoleLog captures the child's stdout/stderr to rotating files.
	ConsoleLog logger.Config
	// Name keys the console capture files.
	Name string
}

func (o *Options) fillDefaults() {
	if o.JavaBin == "" {
		o.JavaBin = DefaultJavaBin
	}
	if o.RunIDProperty == "" {
		o.RunIDProperty = DefaultRunIDProperty
	}
	if o.StopStatusDelay <= 0 {
		o.StopStatusDelay = DefaultStopStatusDelay
	}
	if o.RosterPollInterval <= 0 {
		o.RosterPollInterval = DefaultRosterPollInterval
	}
	if o.MetricsInterval <= 0 {
		o.MetricsInterval = DefaultMetricsInterval
	}
	if o.Name == "" {
		o.Name = "server"
	}
}

// Supervisor manages at most one server process at a time. All methods are
// safe for concurrent use; lifecycle transitions are serialized under the
// internal lock and at most one is in flight.
type Supervisor struct {
	mu    sync.Mutex
	bus   *event.Bus
	opts  Options
	state State
	// defaults hold the launch parameters for the next start and the
	// last-known fallback for restarts.
	defaults LaunchParams

	cmd   *exec.Cmd
	stdin io.WriteCloser
	// gen identifies the current run. Exit handling for a stale generation
	// skips classification, which makes stop/kill's immediate reset
	// idempotent-safe against the late OS exit callback.
	gen      int
	runDone  chan struct{}
	dupTimer *time.Timer

	tracker      *roster.Tracker
	stdoutParser *logparse.Parser
	stderrParser *logparse.Parser
	pub          *metrics.Publisher

	log *slog.Logger
}

// New creates a Supervisor publishing on bus. defaults seed the launch
// parameters used when Start is called with zero-value params.
func New(bus *event.Bus, opts Options, defaults LaunchParams) *Supervisor {
	opts.fillDefaults()
	s := &Supervisor{
		bus:      bus,
		opts:     opts,
		defaults: defaults,
		log:      slog.Default().With("component", "supervisor"),
	}
	s.state.Machine = StateIdle
	s.tracker = roster.New(s.rosterSend, opts.Roster)
	sink := &consoleSink{s: s}
	s.stdoutParser = logparse.NewParser(sink)
	s.stdoutParser.SetRosterPending(s.tracker.RequestPending)
	s.stderrParser = logparse.NewParser(sink)
	return s
}

// SetPublisher attaches the throttled metrics publisher. It must be set
// before the first start.
func (s *Supervisor) SetPublisher(p *metrics.Publisher) {
	s.mu.Lock()
	s.pub = p
	s.mu.Unlock()
}

// Tracker exposes the roster tracker.
func (s *Supervisor) Tracker() *roster.Tracker { return s.tracker }

// State returns a snapshot of the tracked process.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetDefaults records the launch parameters for the next start.
func (s *Supervisor) SetDefaults(p LaunchParams) {
	s.mu.Lock()
	s.defaults = p
	s.mu.Unlock()
}

// Defaults returns the launch parameters used when none are supplied.
func (s *Supervisor) Defaults() LaunchParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults
}

// ProcessInfo feeds the metrics publisher.
func (s *Supervisor) ProcessInfo() (pid int, startedAt time.Time, maxMemGB int, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PID, s.state.StartedAt, s.state.MaxMemoryGB, s.state.Running
}

// Start spawns the server with the given parameters; each zero-value field
// falls back to the recorded default for that field. It returns
// ErrAlreadyRunning when a process is tracked and never blocks on the
// spawned process.
func (s *Supervisor) Start(p LaunchParams) error {
	d := s.Defaults()
	if p.TargetPath == "" {
		p.TargetPath = d.TargetPath
	}
	if p.Port == 0 {
		p.Port = d.Port
	}
	if p.MaxMemoryGB == 0 {
		p.MaxMemoryGB = d.MaxMemoryGB
	}
	if p.Artifact == "" {
		p.Artifact = d.Artifact
	}
	if p.Port <= 0 || p.MaxMemoryGB <= 0 {
		return fmt.Errorf("incomplete launch parameters: port %d, max memory %dGB", p.Port, p.MaxMemoryGB)
	}

	s.mu.Lock()
	if s.state.Running || s.state.Machine == StateStarting {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.setMachineLocked(StateStarting)
	if s.dupTimer != nil {
		s.dupTimer.Stop()
		s.dupTimer = nil
	}
	opts := s.opts
	s.mu.Unlock()

	artifact, err := ResolveArtifact(p.TargetPath, p.Artifact)
	if err != nil {
		s.failStart()
		return err
	}

	runID := uuid.NewString()
	args := []string{
		fmt.Sprintf("-Xmx%dG", p.MaxMemoryGB),
		fmt.Sprintf("-D%s=%s", opts.RunIDProperty, runID),
		"-jar", artifact,
		"nogui",
		"--port", strconv.Itoa(p.Port),
	}
	// #nosec G204
	cmd := exec.Command(opts.JavaBin, args...)
	cmd.Dir = p.TargetPath
	setSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.failStart()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	outCloser, errCloser, _ := opts.ConsoleLog.Writers(opts.Name)
	cmd.Stdout = teeWriter(s.stdoutParser, outCloser)
	cmd.Stderr = teeWriter(s.stderrParser, errCloser)

	if err := cmd.Start(); err != nil {
		closeAll(outCloser, errCloser)
		s.failStart()
		// Spawn failure: the process never started, so no exit event will
		// ever fire and no auto-restart is triggered.
		return fmt.Errorf("spawn %s: %w", opts.JavaBin, err)
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.cmd = cmd
	s.stdin = stdin
	s.runDone = make(chan struct{})
	done := s.runDone
	s.state = State{
		Running:        true,
		PID:            cmd.Process.Pid,
		StartedAt:      time.Now(),
		TargetPath:     p.TargetPath,
		Port:           p.Port,
		MaxMemoryGB:    p.MaxMemoryGB,
		LaunchArtifact: artifact,
		RunID:          runID,
		Machine:        StateStarting,
	}
	s.setMachineLocked(StateRunning)
	s.defaults = p
	pub := s.pub
	s.mu.Unlock()

	s.log.Info("server started", "pid", cmd.Process.Pid, "artifact", artifact, "port", p.Port, "run_id", runID)
	metrics.IncStart()
	s.bus.Publish(event.Event{Type: event.TypeStarted})
	s.bus.Publish(event.Event{Type: event.TypeStatus, Payload: event.StatusRunning})

	go s.runTickers(done, pub)
	go s.monitor(gen, cmd, outCloser, errCloser)
	return nil
}

// Stop writes the graceful shutdown command and immediately clears local
// state rather than waiting for the OS exit callback; the late callback is
// discarded by the generation token. A duplicate status notification follows
// after a short delay to cover races with asynchronous consumers.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.state.Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	stdin := s.stdin
	s.gen++ // orphan the monitor; its exit classification is skipped
	s.resetLocked(StateStopped)
	delay := s.opts.StopStatusDelay
	s.dupTimer = time.AfterFunc(delay, func() {
		s.bus.Publish(event.Event{Type: event.TypeStatus, Payload: event.StatusStopped})
	})
	pub := s.pub
	s.mu.Unlock()

	if stdin != nil {
		_, _ = io.WriteString(stdin, "stop\n")
		_ = stdin.Close()
	}
	s.afterTeardown(pub)
	s.log.Info("server stop requested")
	metrics.IncStop()
	s.bus.Publish(event.Event{Type: event.TypeNormalExit})
	s.bus.Publish(event.Event{Type: event.TypeStatus, Payload: event.StatusStopped})
	return nil
}

// Kill forcefully terminates the process tree, then performs the same
// immediate reset as Stop. A manual kill is not a crash: subscribers reset
// the crash counter on the killed event.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	if !s.state.Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	pid := s.state.PID
	s.gen++
	s.resetLocked(StateStopped)
	pub := s.pub
	s.mu.Unlock()

	if err := killTree(pid); err != nil {
		s.log.Warn("kill failed", "pid", pid, "error", err)
	}
	s.afterTeardown(pub)
	s.log.Info("server killed", "pid", pid)
	metrics.IncStop()
	s.bus.Publish(event.Event{Type: event.TypeNormalExit})
	s.bus.Publish(event.Event{Type: event.TypeKilled})
	s.bus.Publish(event.Event{Type: event.TypeStatus, Payload: event.StatusStopped})
	return nil
}

// SendCommand writes an arbitrary console command to the server's stdin.
func (s *Supervisor) SendCommand(cmd string) error {
	s.mu.Lock()
	if !s.state.Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	stdin := s.stdin
	s.mu.Unlock()
	_, err := io.WriteString(stdin, cmd+"\n")
	return err
}

// Close tears down a running process (if any) and cancels timers.
func (s *Supervisor) Close() {
	_ = s.Kill()
	s.mu.Lock()
	if s.dupTimer != nil {
		s.dupTimer.Stop()
		s.dupTimer = nil
	}
	s.mu.Unlock()
}

// rosterSend is the tracker's command sink.
func (s *Supervisor) rosterSend(cmd string) error { return s.SendCommand(cmd) }

// monitor reaps the child and routes exit classification. It runs once per
// spawn; when the generation is stale the run was already torn down by
// Stop/Kill and only the reap remains.
func (s *Supervisor) monitor(gen int, cmd *exec.Cmd, closers ...io.Closer) {
	waitErr := cmd.Wait()
	closeAll(closers...)

	s.mu.Lock()
	if gen != s.gen {
		running := s.state.Running
		pub := s.pub
		s.mu.Unlock()
		// The run was already torn down by Stop/Kill, but console bytes that
		// trickled in between the reset and the actual exit may have
		// repopulated the roster. Tear down again unless a new run owns it.
		if !running {
			s.afterTeardown(pub)
		}
		return
	}
	code, sig := exitInfo(cmd, waitErr)
	// Capture restart info before the state is cleared; afterwards it is
	// unrecoverable.
	info := event.CrashInfo{
		TargetPath:     s.state.TargetPath,
		Port:           s.state.Port,
		MaxMemoryGB:    s.state.MaxMemoryGB,
		LaunchArtifact: s.state.LaunchArtifact,
		PID:            s.state.PID,
		ExitCode:       code,
		Signal:         sig,
	}
	normal := classifyExit(code, sig)
	if normal {
		s.resetLocked(StateStopped)
	} else {
		s.resetLocked(StateCrashed)
	}
	pub := s.pub
	s.mu.Unlock()

	s.afterTeardown(pub)
	if normal {
		s.log.Info("server exited", "code", code, "signal", sig)
		metrics.IncStop()
		s.bus.Publish(event.Event{Type: event.TypeNormalExit})
	} else {
		s.log.Warn("server crashed", "code", code, "signal", sig, "pid", info.PID)
		metrics.IncCrash()
		s.bus.Publish(event.Event{Type: event.TypeCrashed, Payload: info})
	}
	s.bus.Publish(event.Event{Type: event.TypeStatus, Payload: event.StatusStopped})
}

// runTickers drives the slow roster poll and the periodic metrics tick for
// one run. Both stop when the run's done channel closes.
func (s *Supervisor) runTickers(done chan struct{}, pub *metrics.Publisher) {
	poll := time.NewTicker(s.opts.RosterPollInterval)
	mt := time.NewTicker(s.opts.MetricsInterval)
	defer poll.Stop()
	defer mt.Stop()
	for {
		select {
		case <-done:
			return
		case <-poll.C:
			s.tracker.Poll()
		case <-mt.C:
			if pub != nil {
				pub.Tick()
			}
		}
	}
}

// resetLocked clears the run state. Must be called with s.mu held.
func (s *Supervisor) resetLocked(machine string) {
	if s.runDone != nil {
		close(s.runDone)
		s.runDone = nil
	}
	s.cmd = nil
	s.stdin = nil
	s.state = State{Machine: s.state.Machine}
	s.setMachineLocked(machine)
}

// afterTeardown performs the out-of-lock cleanup shared by stop, kill, and
// exit handling.
func (s *Supervisor) afterTeardown(pub *metrics.Publisher) {
	s.stdoutParser.Flush()
	s.stderrParser.Flush()
	s.tracker.Reset()
	if pub != nil {
		pub.PublishZero()
	}
}

func (s *Supervisor) failStart() {
	s.mu.Lock()
	s.setMachineLocked(StateIdle)
	s.mu.Unlock()
}

// setMachineLocked must be called with s.mu held.
func (s *Supervisor) setMachineLocked(to string) {
	from := s.state.Machine
	if from == to {
		return
	}
	s.state.Machine = to
	metrics.SetCurrentState(from, false)
	metrics.SetCurrentState(to, true)
}

type consoleSink struct{ s *Supervisor }

func (c *consoleSink) RosterSnapshot(count int, names []string, hasNames bool) {
	c.s.tracker.ApplySnapshot(count, names, hasNames)
}
func (c *consoleSink) PlayerJoined(name string) { c.s.tracker.ApplyJoin(name) }
func (c *consoleSink) PlayerLeft(name string)   { c.s.tracker.ApplyLeave(name) }
func (c *consoleSink) Line(raw string) {
	c.s.bus.Publish(event.Event{Type: event.TypeLog, Payload: raw})
}

// teeWriter fans a stream into the parser and the optional capture file.
func teeWriter(parser io.Writer, capture io.Writer) io.Writer {
	if capture == nil {
		return parser
	}
	return io.MultiWriter(parser, capture)
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}
