// Package retry provides backoff primitives for transient failures: Do for a
// bounded number of attempts and Backoff for the open-ended reconnect loops.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// NonRetryableError marks a failure that another attempt cannot fix.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return "non-retryable: " + e.Err.Error() }

func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps err so Do returns it without further attempts.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was wrapped by NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config shapes a backoff schedule. Zero fields take defaults; see normalize.
type Config struct {
	MaxAttempts  int           // attempts including the first; <= 0 means one
	InitialDelay time.Duration // delay after the first failure
	MaxDelay     time.Duration // cap on any single delay
	Multiplier   float64       // growth per attempt; 1 keeps the delay fixed
	AddJitter    bool          // stretch each delay by up to 25%
}

// DefaultConfig is three attempts starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		AddJitter:    true,
	}
}

// Quick retries fast and often. Used for binding sockets at start-up.
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

func (cfg Config) normalize() (Config, error) {
	switch {
	case cfg.InitialDelay < 0, cfg.MaxDelay < 0:
		return cfg, errors.New("retry: delays cannot be negative")
	case cfg.Multiplier < 0:
		return cfg, errors.New("retry: Multiplier cannot be negative")
	}

	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2
	}
	cfg.Multiplier = min(cfg.Multiplier, 1000)

	if cfg.MaxDelay < cfg.InitialDelay {
		return cfg, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return cfg, nil
}

// Do calls fn until it succeeds, returns a NonRetryable error, ctx ends or
// cfg.MaxAttempts is used up.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalize()
	if err != nil {
		return err
	}

	delay := cfg.InitialDelay
	var last error
	for attempt := 1; ; attempt++ {
		if last = fn(); last == nil {
			return nil
		}
		if IsNonRetryable(last) {
			return last
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, last)
		}
		if err := Wait(ctx, withJitter(delay, cfg.AddJitter)); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, err)
		}
		delay = nextDelay(delay, cfg.Multiplier, cfg.MaxDelay)
	}
}

// Wait sleeps for d unless ctx ends first, in which case it returns
// ctx.Err(). A non-positive d only checks ctx.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withJitter(delay time.Duration, enabled bool) time.Duration {
	if !enabled || delay < 4 {
		return delay
	}
	return delay + rand.N(delay/4)
}

func nextDelay(delay time.Duration, multiplier float64, maxDelay time.Duration) time.Duration {
	next := float64(delay) * multiplier
	if next >= float64(maxDelay) || next >= math.MaxInt64 {
		return maxDelay
	}
	return time.Duration(next)
}
