// Package shard throttles concurrent gateway connection establishment
// against the server-granted session-start budget. Each shard must
// acquire a slot before it begins its identify handshake; the
// coordinator guarantees that no more than max_concurrency handshakes
// start inside one rate-limit window and that the remaining budget
// never goes negative.
package shard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"
)

var (
	ErrNotInitialized = errors.New("shard: coordinator not initialized, call UpdateLimit first")
	ErrDestroyed      = errors.New("shard: coordinator destroyed")
)

// Limit is the server-granted concurrency envelope delivered by the
// bootstrap REST call.
type Limit struct {
	Total             int
	Remaining         int
	ResetAfter        time.Duration
	MaxConcurrency    int
	RecommendedShards int
}

// Config tunes the coordinator. Zero values select the defaults.
type Config struct {
	// BatchDelay is the pause between acquisition batches.
	BatchDelay time.Duration

	Logger *zap.Logger
}

// waiter states. Grants and cancellations race; whoever swaps the
// state first owns the waiter.
const (
	waiterWaiting int32 = iota
	waiterGranted
	waiterCanceled
)

type waiter struct {
	done  chan error
	state atomic.Int32
}

// Coordinator hands out connection-establishment slots.
type Coordinator struct {
	cfg Config

	mu          sync.Mutex
	initialized bool
	destroyed   bool
	limit       Limit
	remaining   int
	batchGrants int
	waiters     *queue.Queue
	resetTimer  *time.Timer
	batchTimer  *time.Timer
}

// NewCoordinator creates an uninitialized coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:     cfg,
		waiters: queue.New(),
	}
}

// UpdateLimit installs the budget from a bootstrap response and clears
// any pending reset timer.
func (c *Coordinator) UpdateLimit(limit Limit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if limit.MaxConcurrency <= 0 {
		limit.MaxConcurrency = 1
	}
	c.limit = limit
	c.remaining = limit.Remaining
	c.initialized = true
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.cfg.Logger.Debug("session start limit updated",
		zap.Int("total", limit.Total),
		zap.Int("remaining", limit.Remaining),
		zap.Duration("reset_after", limit.ResetAfter),
		zap.Int("max_concurrency", limit.MaxConcurrency),
	)
}

// Acquire blocks until a connection-establishment slot is granted, the
// context is done, or the coordinator is destroyed.
func (c *Coordinator) Acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	w := &waiter{done: make(chan error, 1)}
	c.waiters.Add(w)
	c.processLocked()
	c.mu.Unlock()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		if w.state.CompareAndSwap(waiterWaiting, waiterCanceled) {
			return ctx.Err()
		}
		// a grant won the race; take it and hand the slot back so it
		// is not lost
		if err := <-w.done; err == nil {
			c.release()
		}
		return ctx.Err()
	}
}

// release returns a granted but unused slot to the budget.
func (c *Coordinator) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.remaining++
	if c.batchGrants > 0 {
		c.batchGrants--
	}
	c.processLocked()
}

// processLocked grants waiters up to MaxConcurrency per rate-limit
// window. A window closes BatchDelay after its first grant; queued
// waiters then roll into the next window. Callers hold c.mu.
func (c *Coordinator) processLocked() {
	if c.destroyed {
		return
	}
	for c.waiters.Length() > 0 && c.batchGrants < c.limit.MaxConcurrency {
		if c.remaining <= 0 {
			c.scheduleResetLocked()
			break
		}
		w := c.waiters.Remove().(*waiter)
		if !w.state.CompareAndSwap(waiterWaiting, waiterGranted) {
			continue
		}
		c.remaining--
		c.batchGrants++
		w.done <- nil
	}
	if c.batchGrants > 0 && c.batchTimer == nil {
		c.batchTimer = time.AfterFunc(c.cfg.BatchDelay, func() {
			c.mu.Lock()
			c.batchTimer = nil
			c.batchGrants = 0
			c.processLocked()
			c.mu.Unlock()
		})
	}
}

// scheduleResetLocked arms the timer that restores the full budget at
// the end of the rate-limit window. Callers hold c.mu.
func (c *Coordinator) scheduleResetLocked() {
	if c.resetTimer != nil {
		return
	}
	c.cfg.Logger.Warn("session start budget exhausted, waiting for reset",
		zap.Duration("reset_after", c.limit.ResetAfter),
		zap.Int("queued", c.waiters.Length()),
	)
	c.resetTimer = time.AfterFunc(c.limit.ResetAfter, func() {
		c.mu.Lock()
		c.resetTimer = nil
		if !c.destroyed {
			c.remaining = c.limit.Total
			c.processLocked()
		}
		c.mu.Unlock()
	})
}

// Remaining returns the session starts left in the current window.
func (c *Coordinator) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// RecommendedShards returns the server-suggested shard count, or 0
// before initialization.
func (c *Coordinator) RecommendedShards() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit.RecommendedShards
}

// MaxConcurrency returns the per-window handshake budget.
func (c *Coordinator) MaxConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit.MaxConcurrency
}

// Destroy stops all timers and fails every queued acquisition.
// Idempotent.
func (c *Coordinator) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	if c.batchTimer != nil {
		c.batchTimer.Stop()
		c.batchTimer = nil
	}
	c.batchGrants = 0
	for c.waiters.Length() > 0 {
		w := c.waiters.Remove().(*waiter)
		w.done <- ErrDestroyed
	}
	c.initialized = false
}
