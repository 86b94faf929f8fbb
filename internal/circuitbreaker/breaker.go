// Package circuitbreaker protects the bootstrap REST endpoint from
// being hammered while it is down. Reconnecting shards all resolve the
// connection URL through the same API; once it starts failing, the
// breaker fails those calls fast until a probe succeeds.
package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// State is the breaker state.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// Breaker opens after maxFailures consecutive failures and allows a
// single probe after the cooldown timeout.
type Breaker struct {
	maxFailures int64
	timeout     time.Duration

	state    atomic.Int32
	failures atomic.Int64

	mu          sync.RWMutex
	lastFailure time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int64, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
	}
}

// Allow reports whether a call may proceed, transitioning an expired
// open breaker to half-open.
func (b *Breaker) Allow() bool {
	switch State(b.state.Load()) {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		b.mu.RLock()
		lastFailure := b.lastFailure
		b.mu.RUnlock()
		if time.Since(lastFailure) >= b.timeout {
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				b.failures.Store(0)
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RecordSuccess closes a half-open breaker.
func (b *Breaker) RecordSuccess() {
	if State(b.state.Load()) == StateHalfOpen {
		b.state.Store(int32(StateClosed))
		b.failures.Store(0)
	}
}

// RecordFailure counts a failure, opening the breaker at the
// threshold.
func (b *Breaker) RecordFailure() {
	failures := b.failures.Add(1)
	b.mu.Lock()
	b.lastFailure = time.Now()
	b.mu.Unlock()
	if failures >= b.maxFailures {
		b.state.Store(int32(StateOpen))
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	return State(b.state.Load())
}

// Do runs fn under the breaker: rejected with ErrOpen while open,
// recorded as success or failure otherwise.
func (b *Breaker) Do(fn func() error) error {
	if !b.Allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
