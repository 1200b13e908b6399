// Package roster maintains the authoritative in-memory view of connected
// players, inferred from console text rather than a structured API. The
// tracker converges by sending "list" commands back to the server: a slow
// periodic poll, an immediate reconcile after a join, and a short accelerated
// burst after a leave.
package roster

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMinRequestInterval rate-limits unsolicited roster requests.
	DefaultMinRequestInterval = 10 * time.Second
)

// DefaultAccelDelays schedules the follow-up roster requests issued after a
// leave event. The rate limit is relaxed while these are outstanding.
var DefaultAccelDelays = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	6 * time.Second,
}

// Options tune request scheduling. Zero values select the defaults.
type Options struct {
	MinRequestInterval time.Duration
	AccelDelays        []time.Duration
}

// Tracker owns the player roster. It is safe for concurrent use; all
// mutations arrive through the Apply methods driven by parsed console lines.
type Tracker struct {
	mu    sync.Mutex
	count int
	names []string

	send     func(cmd string) error
	onChange func()

	minInterval time.Duration
	accelDelays []time.Duration

	pending     bool
	lastRequest time.Time
	accelTimers []*time.Timer
	accelLeft   int

	log *slog.Logger
}

// New creates a Tracker that issues roster requests through send. send must
// accept a bare console command such as "list".
func New(send func(cmd string) error, opts Options) *Tracker {
	if opts.MinRequestInterval <= 0 {
		opts.MinRequestInterval = DefaultMinRequestInterval
	}
	if len(opts.AccelDelays) == 0 {
		opts.AccelDelays = DefaultAccelDelays
	}
	return &Tracker{
		send:        send,
		minInterval: opts.MinRequestInterval,
		accelDelays: opts.AccelDelays,
		log:         slog.Default().With("component", "roster"),
	}
}

// SetOnChange installs a hook invoked after every roster mutation.
func (t *Tracker) SetOnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Snapshot returns the current count and a copy of the ordered names.
func (t *Tracker) Snapshot() (int, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.names))
	copy(names, t.names)
	return t.count, names
}

// RequestPending reports whether a roster request awaits its snapshot reply.
func (t *Tracker) RequestPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// ApplySnapshot ingests a roster report. An explicit name list replaces the
// roster wholesale. A count-only report keeps the existing names only when
// their length still matches; the count is trusted, the names are not.
func (t *Tracker) ApplySnapshot(count int, names []string, hasNames bool) {
	t.mu.Lock()
	if hasNames {
		t.names = append([]string(nil), names...)
		t.count = len(t.names)
	} else {
		if count != len(t.names) {
			t.names = nil
		}
		t.count = count
	}
	t.pending = false
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ApplyJoin records a newly connected player and requests an immediate
// reconcile unless an accelerated cycle is already converging the roster.
func (t *Tracker) ApplyJoin(name string) {
	t.mu.Lock()
	if t.contains(name) {
		t.mu.Unlock()
		return
	}
	t.names = append(t.names, name)
	t.count = len(t.names)
	accelActive := t.accelLeft > 0
	fn := t.onChange
	t.mu.Unlock()

	if !accelActive {
		t.request(false)
	}
	if fn != nil {
		fn()
	}
}

// ApplyLeave records a disconnect and starts the accelerated check cycle to
// converge faster after churn.
func (t *Tracker) ApplyLeave(name string) {
	t.mu.Lock()
	idx := -1
	for i, n := range t.names {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return
	}
	t.names = append(t.names[:idx], t.names[idx+1:]...)
	t.count = len(t.names)
	fn := t.onChange
	t.mu.Unlock()

	t.startAccelCycle()
	if fn != nil {
		fn()
	}
}

// Poll issues a roster request on the normal slow cadence, subject to the
// rate limit.
func (t *Tracker) Poll() {
	t.request(false)
}

// Reset clears the roster and cancels any scheduled follow-ups. Call it when
// the server process is no longer running.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.count = 0
	t.names = nil
	t.pending = false
	t.lastRequest = time.Time{}
	t.cancelAccelLocked()
	t.mu.Unlock()
}

// contains must be called with t.mu held.
func (t *Tracker) contains(name string) bool {
	for _, n := range t.names {
		if n == name {
			return true
		}
	}
	return false
}

// request sends a "list" command. Unsolicited requests respect the minimum
// interval; forced requests (accelerated follow-ups) bypass it.
func (t *Tracker) request(force bool) {
	t.mu.Lock()
	relaxed := t.accelLeft > 0
	if !force && !relaxed && !t.lastRequest.IsZero() && time.Since(t.lastRequest) < t.minInterval {
		t.mu.Unlock()
		return
	}
	send := t.send
	t.pending = true
	t.lastRequest = time.Now()
	t.mu.Unlock()

	if send != nil {
		if err := send("list"); err != nil {
			t.log.Debug("roster request failed", "error", err)
			t.mu.Lock()
			t.pending = false
			t.mu.Unlock()
		}
	}
}

func (t *Tracker) startAccelCycle() {
	t.mu.Lock()
	t.cancelAccelLocked()
	t.accelLeft = len(t.accelDelays)
	for _, d := range t.accelDelays {
		timer := time.AfterFunc(d, func() {
			t.request(true)
			t.mu.Lock()
			if t.accelLeft > 0 {
				t.accelLeft--
			}
			t.mu.Unlock()
		})
		t.accelTimers = append(t.accelTimers, timer)
	}
	t.mu.Unlock()
}

// cancelAccelLocked must be called with t.mu held.
func (t *Tracker) cancelAccelLocked() {
	for _, timer := range t.accelTimers {
		timer.Stop()
	}
	t.accelTimers = nil
	t.accelLeft = 0
}
