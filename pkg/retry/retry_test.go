package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"
)

// customError implements temporary interface for testing
type customError struct {
	message   string
	temporary bool
}

func (e customError) Error() string   { return e.message }
func (e customError) Temporary() bool { return e.temporary }

func instantAfter(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func testConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		After:        instantAfter,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.InitialDelay != 200*time.Millisecond {
		t.Errorf("expected InitialDelay=200ms, got %v", cfg.InitialDelay)
	}
	if !cfg.Jitter {
		t.Error("expected Jitter=true")
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero attempts", Config{InitialDelay: time.Millisecond}, true},
		{"zero delay", Config{MaxAttempts: 1}, true},
		{"initial above max", Config{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"multiplier below one", Config{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 0.5}, true},
		{"minimal", Config{MaxAttempts: 1, InitialDelay: time.Millisecond}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Normalize()
			if (err != nil) != tt.wantErr {
				t.Errorf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
		{"temporary error", customError{"temp", true}, true},
		{"non-temporary error", customError{"not temp", false}, false},
		{"regular error", errors.New("regular"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.expected {
				t.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	config := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := config.calculateDelay(tt.attempt); got != tt.expected {
				t.Errorf("calculateDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestApplyJitter(t *testing.T) {
	config := Config{MaxDelay: time.Second, Jitter: true, Rand: rand.New(rand.NewSource(1))}

	for i := 0; i < 100; i++ {
		got := config.applyJitter(100 * time.Millisecond)
		if got < 100*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 150ms]", got)
		}
	}

	config.Jitter = false
	if got := config.applyJitter(100 * time.Millisecond); got != 100*time.Millisecond {
		t.Errorf("jitter disabled: got %v", got)
	}
}

func TestDoSuccessAfterTransientErrors(t *testing.T) {
	var attempts int32
	var retries []int
	cfg := testConfig(5)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return customError{"blip", true}
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(retries) != 2 {
		t.Errorf("expected 2 OnRetry calls, got %v", retries)
	}
}

func TestDoNonRetryable(t *testing.T) {
	var attempts int32
	permanent := errors.New("card number invalid")

	err := Do(context.Background(), testConfig(5), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return permanent
	}, DefaultRetryable)
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	var exceeded *RetriesExceededError
	if errors.As(err, &exceeded) {
		t.Error("non-retryable errors must be returned unwrapped")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoExhausted(t *testing.T) {
	blip := customError{"blip", true}

	_, err := DoValue(context.Background(), testConfig(3), func(ctx context.Context) (int, error) {
		return 0, blip
	}, nil)

	var exceeded *RetriesExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected RetriesExceededError, got %T: %v", err, err)
	}
	if exceeded.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", exceeded.Attempts)
	}
	if !errors.Is(err, blip) {
		t.Error("last error must be preserved")
	}
}

func TestDoValueReturnsValue(t *testing.T) {
	v, err := DoValue(context.Background(), testConfig(2), func(ctx context.Context) (string, error) {
		return "txn_1", nil
	}, nil)
	if err != nil || v != "txn_1" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestDoContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var attempts int32
	err := Do(ctx, testConfig(3), func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 0 {
		t.Errorf("expected no attempts, got %d", attempts)
	}
}

func TestDoCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(3)
	cfg.After = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	err := Do(ctx, cfg, func(ctx context.Context) error {
		return customError{"blip", true}
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
