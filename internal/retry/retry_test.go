package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxRetries: 3, RetryDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	sentinel := errors.New("always fails")
	err := Do(context.Background(), Config{MaxRetries: 2, RetryDelay: time.Millisecond}, func() error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel error, got %v", err)
	}
}

func TestSchedule_Delay(t *testing.T) {
	s := Schedule{time.Second, 5 * time.Second, 10 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 5 * time.Second},
		{3, 10 * time.Second},
		{4, 10 * time.Second},  // clamps to last
		{99, 10 * time.Second}, // clamps to last
		{0, time.Second},       // floors to first
	}
	for _, c := range cases {
		if got := s.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d): expected %v, got %v", c.attempt, c.want, got)
		}
	}

	if got := Schedule(nil).Delay(1); got != 0 {
		t.Errorf("Expected nil schedule delay 0, got %v", got)
	}
}

func TestSchedule_WaitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := Schedule{time.Hour}
	if err := s.Wait(ctx, 1); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
