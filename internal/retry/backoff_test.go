package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("Expected MaxAttempts=3, got %d", config.MaxAttempts)
	}

	if config.BaseDelay != 10*time.Millisecond {
		t.Errorf("Expected BaseDelay=10ms, got %v", config.BaseDelay)
	}

	if config.MaxDelay != 250*time.Millisecond {
		t.Errorf("Expected MaxDelay=250ms, got %v", config.MaxDelay)
	}

	if config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier=2.0, got %f", config.Multiplier)
	}

	if !config.Jitter {
		t.Error("Expected Jitter=true")
	}
}

func alwaysRetryable(error) bool { return true }

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultConfig(), alwaysRetryable, func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	config := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}

	attempts := 0
	err := Do(context.Background(), config, alwaysRetryable, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")

	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func(error) bool { return false }, func() error {
		attempts++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("Expected permanent error, got %v", err)
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	config := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}

	transient := errors.New("transient")

	attempts := 0
	err := Do(context.Background(), config, alwaysRetryable, func() error {
		attempts++
		return transient
	})

	if !errors.Is(err, transient) {
		t.Errorf("Expected transient error, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	config := Config{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    time.Second,
		Multiplier:  1.0,
	}

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, config, alwaysRetryable, func() error {
			attempts++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}

	if attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", attempts)
	}
}

func TestCalculateDelay(t *testing.T) {
	config := Config{
		BaseDelay:  10 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false,
	}

	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 40 * time.Millisecond},
		{3, 50 * time.Millisecond}, // capped at MaxDelay
		{10, 50 * time.Millisecond},
	}

	for _, tc := range cases {
		if got := calculateDelay(config, tc.attempt); got != tc.expected {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.expected, got)
		}
	}
}

func TestCalculateDelay_JitterBounds(t *testing.T) {
	config := Config{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}

	for i := 0; i < 100; i++ {
		delay := calculateDelay(config, 0)
		if delay < 90*time.Millisecond || delay > 110*time.Millisecond {
			t.Errorf("Jittered delay %v outside +/-10%% of base", delay)
		}
	}
}
