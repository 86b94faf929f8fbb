package shard

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCoordinator_AcquireBeforeInit(t *testing.T) {
	c := NewCoordinator(Config{})
	defer c.Destroy()
	if err := c.Acquire(context.Background()); err != ErrNotInitialized {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestCoordinator_AcquireWithinBudget(t *testing.T) {
	c := NewCoordinator(Config{BatchDelay: 10 * time.Millisecond})
	defer c.Destroy()
	c.UpdateLimit(Limit{Total: 10, Remaining: 10, ResetAfter: time.Hour, MaxConcurrency: 2})

	if err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if c.Remaining() != 9 {
		t.Errorf("Expected remaining 9, got %d", c.Remaining())
	}
}

func TestCoordinator_BatchedConcurrency(t *testing.T) {
	c := NewCoordinator(Config{BatchDelay: 20 * time.Millisecond})
	defer c.Destroy()
	c.UpdateLimit(Limit{Total: 10, Remaining: 10, ResetAfter: time.Hour, MaxConcurrency: 1})

	var mu sync.Mutex
	var grantTimes []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			grantTimes = append(grantTimes, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(grantTimes) != 2 {
		t.Fatalf("Expected 2 grants, got %d", len(grantTimes))
	}
	gap := grantTimes[1].Sub(grantTimes[0])
	if gap < 0 {
		gap = -gap
	}
	// With max_concurrency=1 the second grant waits for the next batch.
	if gap < 10*time.Millisecond {
		t.Errorf("Expected grants separated by the batch delay, gap was %v", gap)
	}
}

func TestCoordinator_ExhaustionWaitsForReset(t *testing.T) {
	c := NewCoordinator(Config{BatchDelay: time.Millisecond})
	defer c.Destroy()
	c.UpdateLimit(Limit{Total: 2, Remaining: 1, ResetAfter: 50 * time.Millisecond, MaxConcurrency: 1})

	if err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if c.Remaining() != 0 {
		t.Fatalf("Expected budget exhausted, remaining=%d", c.Remaining())
	}

	start := time.Now()
	if err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Expected acquire to block until reset, returned after %v", elapsed)
	}
	// Reset restores remaining to total before the grant decrements it.
	if c.Remaining() != 1 {
		t.Errorf("Expected remaining 1 after reset and one grant, got %d", c.Remaining())
	}
}

func TestCoordinator_AcquireContextCanceled(t *testing.T) {
	c := NewCoordinator(Config{BatchDelay: time.Millisecond})
	defer c.Destroy()
	c.UpdateLimit(Limit{Total: 1, Remaining: 0, ResetAfter: time.Hour, MaxConcurrency: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Acquire(ctx); err != context.DeadlineExceeded {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestCoordinator_CanceledAcquireReturnsSlot(t *testing.T) {
	c := NewCoordinator(Config{BatchDelay: time.Millisecond})
	defer c.Destroy()
	c.UpdateLimit(Limit{Total: 1000, Remaining: 1000, ResetAfter: time.Hour, MaxConcurrency: 16})

	// A pre-canceled context races the immediate grant: either branch
	// may win the select, but a slot granted to a canceled waiter must
	// flow back to the budget.
	granted := 0
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		switch err := c.Acquire(ctx); err {
		case nil:
			granted++
		case context.Canceled:
		default:
			t.Fatalf("Unexpected acquire error: %v", err)
		}
	}
	if got := c.Remaining(); got != 1000-granted {
		t.Errorf("Expected %d remaining after %d grants, got %d", 1000-granted, granted, got)
	}
}

func TestCoordinator_DestroyFailsWaiters(t *testing.T) {
	c := NewCoordinator(Config{BatchDelay: time.Millisecond})
	c.UpdateLimit(Limit{Total: 1, Remaining: 0, ResetAfter: time.Hour, MaxConcurrency: 1})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Acquire(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	c.Destroy()

	if err := <-errCh; err != ErrDestroyed {
		t.Errorf("Expected ErrDestroyed, got %v", err)
	}
	if err := c.Acquire(context.Background()); err != ErrDestroyed {
		t.Errorf("Expected ErrDestroyed after destroy, got %v", err)
	}
}

func TestCoordinator_UpdateLimitClearsResetTimer(t *testing.T) {
	c := NewCoordinator(Config{BatchDelay: time.Millisecond})
	defer c.Destroy()
	c.UpdateLimit(Limit{Total: 1, Remaining: 1, ResetAfter: time.Hour, MaxConcurrency: 1, RecommendedShards: 3})

	if c.RecommendedShards() != 3 {
		t.Errorf("Expected recommended shards 3, got %d", c.RecommendedShards())
	}

	// A fresh bootstrap replaces the window entirely.
	c.UpdateLimit(Limit{Total: 5, Remaining: 5, ResetAfter: time.Hour, MaxConcurrency: 2})
	if c.Remaining() != 5 {
		t.Errorf("Expected remaining 5 after update, got %d", c.Remaining())
	}
	if c.MaxConcurrency() != 2 {
		t.Errorf("Expected max concurrency 2, got %d", c.MaxConcurrency())
	}
}
