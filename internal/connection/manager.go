// Package connection keeps the Discord IPC link alive and routes it to the
// right application identity.
//
// The [Manager] is a state machine driven from a single goroutine: every
// timer callback, connect result and disconnect notification is delivered
// as a closure on [Manager.Queue], and the owner runs those closures one at
// a time. Nothing in the Manager is locked.
//
//	Disconnected -> Connecting -> Connected
//	Connecting | Connected -> Reconnecting (backoff) -> Connecting
//	any -> Stopped
package connection

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"tools.zach/dev/statuscord/internal/discord"
)

// ErrStopped is returned by operations attempted after [Manager.Stop].
var ErrStopped = errors.New("connection manager stopped")

// ///////////////////////////////////////////////
// States
// ///////////////////////////////////////////////

// State is the lifecycle state of the managed connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// ///////////////////////////////////////////////
// Collaborators
// ///////////////////////////////////////////////

// Transport is one presence connection bound to one application ID.
// [*discord.Client] satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	SetActivity(a *discord.Activity) error
	Close() error
	// Done is closed when the connection ends.
	Done() <-chan struct{}
	// Err reports why the connection ended.
	Err() error
}

// Dialer builds a fresh, unconnected transport for an application ID.
type Dialer func(appID string) Transport

// Config holds identities and timing.
type Config struct {
	// Apps maps identity keys to Discord application IDs.
	Apps map[string]string
	// DefaultIdentity is connected by [Manager.Start].
	DefaultIdentity string

	// Backoff parameters: delay(n) = min(BackoffBase * BackoffFactor^(n-1), BackoffMax).
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration

	// SwitchDebounce delays an identity switch; a newer request replaces it.
	SwitchDebounce time.Duration
	// SwitchCooldown drops switches fired sooner than this after the last
	// completed switch.
	SwitchCooldown time.Duration

	// PollInterval and Poll drive the presence tick once the first
	// connection is ready. Poll may be nil.
	PollInterval time.Duration
	Poll         func()
	// OnReady runs each time a connection becomes ready.
	OnReady func()
}

// DefaultConfig returns the stock timings for a single identity.
func DefaultConfig(appID string) Config {
	return Config{
		Apps:            map[string]string{"default": appID},
		DefaultIdentity: "default",
		BackoffBase:     15 * time.Second,
		BackoffFactor:   1.5,
		BackoffMax:      120 * time.Second,
		SwitchDebounce:  3 * time.Second,
		SwitchCooldown:  15 * time.Second,
		PollInterval:    10 * time.Second,
	}
}

// Backoff returns the reconnect delay before attempt n (1-based).
func (c Config) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(c.BackoffBase) * math.Pow(c.BackoffFactor, float64(n-1))
	if d > float64(c.BackoffMax) || math.IsInf(d, 1) {
		return c.BackoffMax
	}
	return time.Duration(d)
}

// ///////////////////////////////////////////////
// Manager
// ///////////////////////////////////////////////

type timerKind int

const (
	pollTimer timerKind = iota
	reconnectTimer
	switchTimer
	numTimers
)

var timerNames = [numTimers]string{"poll", "reconnect", "switch"}

// Manager owns the connection lifecycle. Apart from [Manager.Queue], its
// methods must be called from the goroutine draining the queue.
type Manager struct {
	cfg   Config
	dial  Dialer
	clock Clock
	log   *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	queue   chan func()
	stopped chan struct{}
	// spawn runs blocking transport work off the loop goroutine.
	spawn func(func())

	state     State
	identity  string
	transport Transport
	// gen identifies the current transport; events from older ones are dropped.
	gen      uint64
	attempts int

	timers [numTimers]Timer
	// seq invalidates timer callbacks that were already queued when cancelled.
	seq [numTimers]uint64

	pending    string
	switching  bool
	lastSwitch time.Time
}

// Option configures a [Manager].
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.log = l } }

// New creates a stopped-at-rest Manager in the Disconnected state.
func New(cfg Config, dial Dialer, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		dial:    dial,
		clock:   SystemClock{},
		log:     slog.Default(),
		queue:   make(chan func(), 32),
		stopped: make(chan struct{}),
		spawn:   func(f func()) { go f() },
		state:   Disconnected,
	}
	for _, o := range opts {
		o(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Queue delivers the Manager's events. The owner must run each closure on
// the goroutine that calls the other methods.
func (m *Manager) Queue() <-chan func() { return m.queue }

// State returns the current lifecycle state.
func (m *Manager) State() State { return m.state }

// Identity returns the identity of the current or in-flight connection.
func (m *Manager) Identity() string { return m.identity }

// Attempts returns the consecutive failed connection attempts.
func (m *Manager) Attempts() int { return m.attempts }

// Start connects the default identity. It is a no-op unless Disconnected.
func (m *Manager) Start() {
	if m.state != Disconnected {
		return
	}
	m.identity = m.cfg.DefaultIdentity
	m.connect()
}

// Stop cancels every timer, closes the transport and enters Stopped.
// No queued or future callback has any effect afterwards.
func (m *Manager) Stop() error {
	if m.state == Stopped {
		return nil
	}
	m.state = Stopped
	m.cancelAll()
	m.cancel()
	close(m.stopped)

	var err error
	if m.transport != nil {
		err = m.transport.Close()
		m.transport = nil
	}
	m.log.Info("connection manager stopped")
	return err
}

// Publish sends a to the connected transport. Failures are logged and
// returned but never change the connection state.
func (m *Manager) Publish(a *discord.Activity) error {
	switch {
	case m.state == Stopped:
		return ErrStopped
	case m.state != Connected || m.transport == nil:
		return discord.ErrNotConnected
	}
	if err := m.transport.SetActivity(a); err != nil {
		m.log.Warn("publish failed", "identity", m.identity, "error", err)
		return err
	}
	return nil
}

// RequestIdentity asks for the connection to present as identity. The
// switch is debounced; a newer request replaces a pending one, and a request
// for the current identity cancels it.
func (m *Manager) RequestIdentity(identity string) {
	if m.state == Stopped {
		return
	}
	if identity == "" {
		identity = m.cfg.DefaultIdentity
	}
	if _, ok := m.cfg.Apps[identity]; !ok {
		m.log.Warn("unknown identity requested", "identity", identity)
		return
	}

	if identity == m.identity {
		if m.timers[switchTimer] != nil {
			m.log.Debug("pending identity switch cancelled", "pending", m.pending)
			m.cancelTimer(switchTimer)
			m.pending = ""
		}
		return
	}

	if m.timers[switchTimer] != nil && m.pending != identity {
		m.log.Debug("identity switch superseded", "previous", m.pending, "next", identity)
	}
	m.pending = identity
	m.schedule(switchTimer, m.cfg.SwitchDebounce, m.fireSwitch)
}

// ///////////////////////////////////////////////
// Transitions
// ///////////////////////////////////////////////

func (m *Manager) connect() {
	m.gen++
	gen := m.gen
	m.state = Connecting

	appID := m.cfg.Apps[m.identity]
	t := m.dial(appID)
	m.transport = t
	m.log.Info("connecting to discord", "identity", m.identity, "attempt", m.attempts+1)

	ctx := m.ctx
	m.spawn(func() {
		err := t.Connect(ctx)
		if !m.enqueue(func() { m.connectResult(gen, t, err) }) && err == nil {
			t.Close()
		}
	})
}

func (m *Manager) connectResult(gen uint64, t Transport, err error) {
	if gen != m.gen || m.state != Connecting {
		if err == nil {
			t.Close()
		}
		return
	}
	if err != nil {
		m.transport = nil
		m.log.Warn("discord connect failed", "identity", m.identity, "error", err)
		m.scheduleReconnect()
		return
	}

	m.state = Connected
	m.attempts = 0
	if m.switching {
		m.switching = false
		m.lastSwitch = m.clock.Now()
	}
	m.log.Info("discord ready", "identity", m.identity)
	m.watch(gen, t)

	if m.cfg.Poll != nil && m.timers[pollTimer] == nil {
		m.schedule(pollTimer, m.cfg.PollInterval, m.firePoll)
	}
	if m.cfg.OnReady != nil {
		m.cfg.OnReady()
	}
}

// watch turns the transport's Done channel into a queued disconnect event.
func (m *Manager) watch(gen uint64, t Transport) {
	done := t.Done()
	go func() {
		select {
		case <-done:
			m.enqueue(func() { m.disconnected(gen, t.Err()) })
		case <-m.stopped:
		}
	}()
}

func (m *Manager) disconnected(gen uint64, err error) {
	if gen != m.gen || m.state != Connected {
		return
	}
	m.transport = nil
	m.log.Warn("discord disconnected", "identity", m.identity, "error", err)
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	if m.state == Reconnecting || m.state == Stopped {
		return
	}
	m.attempts++
	delay := m.cfg.Backoff(m.attempts)
	m.state = Reconnecting
	m.log.Info("reconnect scheduled", "identity", m.identity, "attempt", m.attempts, "delay", delay)
	m.schedule(reconnectTimer, delay, func() {
		if m.state == Reconnecting {
			m.connect()
		}
	})
}

func (m *Manager) fireSwitch() {
	target := m.pending
	m.pending = ""
	if target == "" || target == m.identity {
		return
	}

	if !m.lastSwitch.IsZero() {
		if since := m.clock.Now().Sub(m.lastSwitch); since < m.cfg.SwitchCooldown {
			m.log.Info("identity switch rate limited", "target", target, "since_last", since)
			return
		}
	}

	m.log.Info("switching identity", "from", m.identity, "to", target)
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.log.Warn("closing previous connection failed", "identity", m.identity, "error", err)
		}
		m.transport = nil
	}
	m.cancelTimer(reconnectTimer)

	m.identity = target
	m.attempts = 0
	m.switching = true
	m.connect()
}

func (m *Manager) firePoll() {
	m.schedule(pollTimer, m.cfg.PollInterval, m.firePoll)
	m.cfg.Poll()
}

// ///////////////////////////////////////////////
// Timers
// ///////////////////////////////////////////////

// schedule replaces any timer of the same kind. fn runs on the loop
// goroutine unless the timer was cancelled or replaced in the meantime.
func (m *Manager) schedule(kind timerKind, d time.Duration, fn func()) {
	m.cancelTimer(kind)
	seq := m.seq[kind]
	m.timers[kind] = m.clock.AfterFunc(d, func() {
		m.enqueue(func() {
			if m.state == Stopped || m.seq[kind] != seq {
				return
			}
			m.timers[kind] = nil
			fn()
		})
	})
}

func (m *Manager) cancelTimer(kind timerKind) {
	m.seq[kind]++
	if m.timers[kind] != nil {
		m.timers[kind].Stop()
		m.timers[kind] = nil
	}
}

func (m *Manager) cancelAll() {
	for k := range numTimers {
		if m.timers[k] != nil {
			m.log.Debug("timer cancelled", "timer", timerNames[k])
		}
		m.cancelTimer(k)
	}
}

// enqueue hands fn to the loop. It reports false once the Manager stopped.
func (m *Manager) enqueue(fn func()) bool {
	select {
	case <-m.stopped:
		return false
	default:
	}
	select {
	case m.queue <- fn:
		return true
	case <-m.stopped:
		return false
	}
}
