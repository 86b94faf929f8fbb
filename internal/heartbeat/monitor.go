// Package heartbeat implements the gateway liveness probe: a repeating
// timer that requests heartbeat sends, tracks acknowledgements, and
// declares the connection zombied after too many missed beats.
//
// The monitor never writes to the socket itself. It emits signals on a
// channel the owning connection drains, keeping the two testable in
// isolation.
package heartbeat

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// historyCap bounds the latency sample ring.
	historyCap = 100

	// maxSequence is the largest sequence number the remote service
	// can deliver (it sequences in 53-bit float space).
	maxSequence = int64(1)<<53 - 1
)

var (
	ErrAlreadyRunning  = errors.New("heartbeat: monitor already running")
	ErrInvalidInterval = errors.New("heartbeat: interval must be positive")
	ErrInvalidSequence = errors.New("heartbeat: sequence out of range")
)

// SignalType discriminates monitor signals.
type SignalType int

const (
	// SignalBeat asks the owner to transmit a heartbeat frame.
	SignalBeat SignalType = iota
	// SignalZombie reports that the missed-beat threshold was reached
	// and the monitor destroyed itself.
	SignalZombie
)

// Signal is one monitor-to-owner message. Seq is the last sequence
// number the monitor was told about.
type Signal struct {
	Type SignalType
	Seq  int64
}

// Config tunes the monitor. Zero values select the defaults.
type Config struct {
	// MaxMissed is the zombied-connection threshold.
	MaxMissed int

	// InitialDelay fixes the delay before the first beat. When zero
	// the delay is jittered: interval * rand[MinJitter, MaxJitter).
	InitialDelay time.Duration
	MinJitter    float64
	MaxJitter    float64

	// LatencyCeiling triggers a warning log when exceeded.
	LatencyCeiling time.Duration

	Logger *zap.Logger
}

// Monitor drives the heartbeat lifecycle for one connection.
type Monitor struct {
	cfg     Config
	signals chan Signal
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	interval time.Duration
	timer    *time.Timer
	acked    bool
	missed   int
	total    int64
	seq      int64
	lastSend time.Time
	latency  time.Duration
	history  []time.Duration
}

// NewMonitor creates a stopped monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.MaxMissed <= 0 {
		cfg.MaxMissed = 2
	}
	if cfg.MaxJitter <= cfg.MinJitter {
		cfg.MinJitter = 0
		cfg.MaxJitter = 1
	}
	if cfg.LatencyCeiling <= 0 {
		cfg.LatencyCeiling = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Monitor{
		cfg:     cfg,
		signals: make(chan Signal, 16),
		now:     time.Now,
	}
}

// Signals is the channel the owning connection drains for beat
// requests and zombie detection.
func (m *Monitor) Signals() <-chan Signal {
	return m.signals
}

// Start schedules the first beat after the initial delay, then beats
// every interval until Destroy.
func (m *Monitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true
	m.interval = interval
	m.acked = true
	m.missed = 0

	delay := m.cfg.InitialDelay
	if delay == 0 {
		jitter := m.cfg.MinJitter + rand.Float64()*(m.cfg.MaxJitter-m.cfg.MinJitter)
		delay = time.Duration(float64(interval) * jitter)
	}
	m.timer = time.AfterFunc(delay, m.tick)

	m.cfg.Logger.Debug("heartbeat monitor started",
		zap.Duration("interval", interval),
		zap.Duration("initial_delay", delay),
	)
	return nil
}

func (m *Monitor) tick() {
	m.Beat()
	m.mu.Lock()
	if m.running {
		m.timer = time.AfterFunc(m.interval, m.tick)
	}
	m.mu.Unlock()
}

// Beat records a heartbeat send attempt. If the previous beat was
// never acknowledged it counts as missed; reaching the threshold
// destroys the monitor and emits SignalZombie instead of a beat.
func (m *Monitor) Beat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.total++
	m.lastSend = m.now()
	if !m.acked {
		m.missed++
		m.cfg.Logger.Warn("heartbeat not acknowledged",
			zap.Int("missed", m.missed),
			zap.Int("max_missed", m.cfg.MaxMissed),
		)
		if m.missed >= m.cfg.MaxMissed {
			seq := m.seq
			m.destroyLocked()
			m.emit(Signal{Type: SignalZombie, Seq: seq})
			return
		}
	}
	m.acked = false
	// emitting under the lock means Destroy callers observe no signal
	// after Destroy returns
	m.emit(Signal{Type: SignalBeat, Seq: m.seq})
}

// Ack records a heartbeat acknowledgement and the round-trip latency.
// An ack arriving before any beat is acknowledged but not timed.
func (m *Monitor) Ack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.acked = true
	m.missed = 0
	if m.lastSend.IsZero() {
		return
	}
	m.latency = m.now().Sub(m.lastSend)
	if len(m.history) == historyCap {
		m.history = m.history[1:]
	}
	m.history = append(m.history, m.latency)
	if m.latency > m.cfg.LatencyCeiling {
		m.cfg.Logger.Warn("heartbeat latency above ceiling",
			zap.Duration("latency", m.latency),
			zap.Duration("ceiling", m.cfg.LatencyCeiling),
		)
	}
}

// UpdateSequence stores the sequence number carried by the next beat.
func (m *Monitor) UpdateSequence(seq int64) error {
	if seq < 0 || seq > maxSequence {
		return ErrInvalidSequence
	}
	m.mu.Lock()
	m.seq = seq
	m.mu.Unlock()
	return nil
}

// Missed returns the current missed-beat count.
func (m *Monitor) Missed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed
}

// Latency returns the most recent round-trip latency.
func (m *Monitor) Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency
}

// AverageLatency returns the arithmetic mean of the latency history,
// or zero when no acknowledgement has been seen.
func (m *Monitor) AverageLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range m.history {
		sum += l
	}
	return sum / time.Duration(len(m.history))
}

// TotalBeats returns the number of beats recorded since Start.
func (m *Monitor) TotalBeats() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Running reports whether the monitor timer is live.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Destroy stops the timer and resets all counters and history.
// Idempotent.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	m.destroyLocked()
	m.mu.Unlock()
}

func (m *Monitor) destroyLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.running = false
	m.interval = 0
	m.acked = false
	m.missed = 0
	m.total = 0
	m.seq = 0
	m.lastSend = time.Time{}
	m.latency = 0
	m.history = nil
}

func (m *Monitor) emit(sig Signal) {
	select {
	case m.signals <- sig:
	default:
		m.cfg.Logger.Warn("heartbeat signal dropped, owner not draining",
			zap.Int("type", int(sig.Type)),
		)
	}
}
