// Package session implements the idle-timeout monitor that warns a user
// before their session lapses and logs them out when it does.
//
// A Monitor runs one timer. Its deadline is the earlier of the next
// one-second tick and the expiry instant (last activity plus the session
// length), and it is recomputed on every tick and every activity, so the
// displayed countdown and the real expiry cannot drift apart.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wispberry-tech/sarao-auth/clock"
)

const (
	// DefaultLength is the idle session length: 8 hours.
	DefaultLength = 28800 * time.Second

	// DefaultWarningThreshold is how long before expiry the warning shows.
	DefaultWarningThreshold = 300 * time.Second

	// DefaultTickInterval is how often the remaining time is recomputed.
	DefaultTickInterval = time.Second
)

// State is the monitor's lifecycle state.
type State int

const (
	// StateActive means timers are running and no warning is shown.
	StateActive State = iota
	// StateWarning means the remaining time is at or below the threshold.
	StateWarning
	// StateExpired is terminal: the logout callback has been invoked.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateWarning:
		return "WARNING"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// ActivityKind identifies the user interaction that reset the countdown.
type ActivityKind string

const (
	ActivityPointerMove ActivityKind = "pointermove"
	ActivityKeyPress    ActivityKind = "keypress"
	ActivityScroll      ActivityKind = "scroll"
	ActivityClick       ActivityKind = "click"
)

// TrackedActivities lists the interactions that keep a session alive.
var TrackedActivities = []ActivityKind{
	ActivityPointerMove,
	ActivityKeyPress,
	ActivityScroll,
	ActivityClick,
}

// Config holds the monitor timings. A zero Length or TickInterval takes the
// default; a zero WarningThreshold disables the warning.
type Config struct {
	Length           time.Duration
	WarningThreshold time.Duration
	TickInterval     time.Duration
}

// DefaultConfig returns the 8 hour / 5 minute configuration.
func DefaultConfig() Config {
	return Config{
		Length:           DefaultLength,
		WarningThreshold: DefaultWarningThreshold,
		TickInterval:     DefaultTickInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.Length <= 0 {
		c.Length = DefaultLength
	}
	if c.WarningThreshold < 0 {
		c.WarningThreshold = 0
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Snapshot is a point-in-time view of the monitor.
type Snapshot struct {
	State        State
	LastActivity time.Time
	// TimeLeft is the remaining whole seconds, clamped at zero. Only
	// meaningful when HasTimeLeft is set, which happens after the first
	// tick or activity.
	TimeLeft    int
	HasTimeLeft bool
	ShowWarning bool
}

// Monitor tracks activity for one mounted session. Create a fresh Monitor
// for every login; an expired or disposed Monitor stays that way.
type Monitor struct {
	cfg      Config
	clock    clock.Clock
	onExpire func()

	mu           sync.Mutex
	started      bool
	disposed     bool
	state        State
	lastActivity time.Time
	timeLeft     int
	hasTimeLeft  bool
	timer        *clock.Timer
	generation   uint64
	listeners    map[uint64]func(Snapshot)
	nextListener uint64
}

// NewMonitor creates a monitor that calls onExpire once when the session
// lapses. A nil clock means the real clock.
func NewMonitor(cfg Config, clk clock.Clock, onExpire func()) *Monitor {
	if clk == nil {
		clk = clock.Real()
	}
	return &Monitor{
		cfg:       cfg.withDefaults(),
		clock:     clk,
		onExpire:  onExpire,
		listeners: make(map[uint64]func(Snapshot)),
	}
}

// Config returns the effective timings.
func (m *Monitor) Config() Config { return m.cfg }

// Start begins the countdown. Calling it again, or after Dispose, does
// nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started || m.disposed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.state = StateActive
	m.lastActivity = m.clock.Now()
	m.schedule()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	slog.Debug("Session monitor started",
		"length", m.cfg.Length,
		"warning_threshold", m.cfg.WarningThreshold)
	m.publish(snap)
}

// Activity records a user interaction: the warning is cleared and the
// countdown restarts from the full session length. Ignored before Start,
// after Dispose and once expired.
func (m *Monitor) Activity(kind ActivityKind) {
	m.mu.Lock()
	if !m.started || m.disposed || m.state == StateExpired {
		m.mu.Unlock()
		return
	}

	wasWarning := m.state == StateWarning
	m.state = StateActive
	m.lastActivity = m.clock.Now()
	m.timeLeft = wholeSeconds(m.cfg.Length)
	m.hasTimeLeft = true
	m.schedule()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if wasWarning {
		slog.Debug("Session warning cleared by activity", "activity", string(kind))
	}
	m.publish(snap)
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every tick, activity
// and state change. The returned func removes the subscription.
func (m *Monitor) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return func() {}
	}
	m.nextListener++
	id := m.nextListener
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Dispose stops the timer and drops every subscriber. No callback runs
// after Dispose returns, except one already executing.
func (m *Monitor) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	clear(m.listeners)
	slog.Debug("Session monitor disposed", "state", m.state.String())
}

// schedule replaces the pending timer with one firing at the earlier of the
// next tick and the expiry instant. Callers hold m.mu.
func (m *Monitor) schedule() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.generation++
	generation := m.generation

	delay := m.cfg.TickInterval
	if untilExpiry := m.lastActivity.Add(m.cfg.Length).Sub(m.clock.Now()); untilExpiry < delay {
		delay = untilExpiry
	}
	// A zero delay would make a fake clock call back synchronously while
	// m.mu is held.
	if delay <= 0 {
		delay = time.Nanosecond
	}

	m.timer = m.clock.AfterFunc(delay, func() { m.fire(generation) })
}

func (m *Monitor) fire(generation uint64) {
	m.mu.Lock()
	if generation != m.generation || m.disposed || m.state == StateExpired {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	elapsed := now.Sub(m.lastActivity)
	remaining := wholeSeconds(m.cfg.Length) - wholeSeconds(elapsed)
	m.timeLeft = max(remaining, 0)
	m.hasTimeLeft = true

	if elapsed >= m.cfg.Length {
		m.state = StateExpired
		m.timer = nil
		m.generation++
		snap := m.snapshotLocked()
		onExpire := m.onExpire
		m.mu.Unlock()

		slog.Info("Session expired after inactivity", "idle", elapsed.Round(time.Second))
		m.publish(snap)
		if onExpire != nil {
			onExpire()
		}
		return
	}

	entered := false
	if m.state == StateActive && m.cfg.WarningThreshold > 0 && remaining <= wholeSeconds(m.cfg.WarningThreshold) {
		m.state = StateWarning
		entered = true
	}
	m.schedule()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if entered {
		slog.Debug("Session warning", "time_left", snap.TimeLeft)
	}
	m.publish(snap)
}

func (m *Monitor) snapshotLocked() Snapshot {
	return Snapshot{
		State:        m.state,
		LastActivity: m.lastActivity,
		TimeLeft:     m.timeLeft,
		HasTimeLeft:  m.hasTimeLeft,
		ShowWarning:  m.state == StateWarning,
	}
}

func (m *Monitor) publish(snap Snapshot) {
	m.mu.Lock()
	listeners := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func wholeSeconds(d time.Duration) int {
	return int(d / time.Second)
}

// FormatTimeLeft renders seconds as m:ss for a countdown prompt. Negative
// input renders as 0:00.
func FormatTimeLeft(seconds int) string {
	seconds = max(seconds, 0)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
