package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"time"
)

// Config defines retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first one)
	MaxAttempts int
	// InitialDelay is the delay before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Jitter spreads delays over [delay, 1.5*delay) to avoid synchronized retries
	Jitter bool
	// Rand is the random source for jitter (optional)
	Rand *rand.Rand
	// OnRetry is called before each wait for observability
	OnRetry func(attempt int, err error, nextDelay time.Duration)
	// After creates a timer channel (for testing, defaults to time.After)
	After func(d time.Duration) <-chan time.Time
}

// DefaultConfig returns the configuration used for payment gateway calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Normalize validates the configuration and fills optional fields.
func (c *Config) Normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay cannot be greater than MaxDelay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.After == nil {
		c.After = time.After
	}
	return nil
}

// IsRetryableFunc determines if an error should trigger a retry
type IsRetryableFunc func(err error) bool

// RetriesExceededError is returned when every attempt failed
type RetriesExceededError struct {
	LastError error
	Attempts  int
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.LastError
}

// DefaultRetryable returns true for timeouts and dropped connections.
func DefaultRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	type temporary interface {
		Temporary() bool
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// Do runs fn until it succeeds, a non-retryable error occurs, attempts run out or ctx ends.
func Do(ctx context.Context, config Config, fn func(ctx context.Context) error, isRetryable IsRetryableFunc) error {
	_, err := DoValue(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, isRetryable)
	return err
}

// DoValue is Do for functions that produce a value. The value of the last attempt is
// returned together with its error.
func DoValue[T any](ctx context.Context, config Config, fn func(ctx context.Context) (T, error), isRetryable IsRetryableFunc) (T, error) {
	var zero T
	if err := config.Normalize(); err != nil {
		return zero, err
	}
	if isRetryable == nil {
		isRetryable = DefaultRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == config.MaxAttempts {
			break
		}
		if !isRetryable(err) {
			return v, err
		}

		delay := config.applyJitter(config.calculateDelay(attempt))
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); delay > remaining {
				delay = remaining
			}
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-config.After(delay):
		}
	}

	return zero, &RetriesExceededError{LastError: lastErr, Attempts: config.MaxAttempts}
}

// calculateDelay returns InitialDelay * Multiplier^(attempt-1), capped at MaxDelay.
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		if delay > time.Duration(float64(c.MaxDelay)/c.Multiplier) {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

func (c Config) applyJitter(delay time.Duration) time.Duration {
	if !c.Jitter || delay <= 1 {
		return delay
	}
	jittered := delay + time.Duration(c.Rand.Int63n(int64(delay/2)+1))
	if jittered > c.MaxDelay {
		return c.MaxDelay
	}
	return jittered
}
