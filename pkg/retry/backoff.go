package retry

import (
	"context"
	"sync"
	"time"
)

// Backoff is an explicit reconnect countdown. A failed attempt arms it with
// the next delay; Wait blocks until the countdown expires. A successful
// attempt resets the delay to the initial value.
//
// Unlike Do, Backoff never gives up: reconnect loops run until stopped.
type Backoff struct {
	mu       sync.Mutex
	cfg      Config
	delay    time.Duration
	deadline time.Time
	now      func() time.Time
}

// NewBackoff creates a countdown from cfg. MaxAttempts is ignored.
// A Multiplier of 1 gives a fixed delay.
func NewBackoff(cfg Config) (*Backoff, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Backoff{cfg: cfg, delay: cfg.InitialDelay, now: time.Now}, nil
}

// Fixed returns a countdown with a constant delay and no jitter.
func Fixed(delay time.Duration) *Backoff {
	b, err := NewBackoff(Config{InitialDelay: delay, MaxDelay: delay, Multiplier: 1})
	if err != nil {
		// Only reachable with a negative delay.
		b, _ = NewBackoff(Config{Multiplier: 1, InitialDelay: 100 * time.Millisecond, MaxDelay: 100 * time.Millisecond})
	}
	return b
}

// Arm starts the countdown with the current delay and advances the delay
// for the next failure. It returns the armed duration.
func (b *Backoff) Arm() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := withJitter(b.delay, b.cfg.AddJitter)
	b.deadline = b.now().Add(d)
	b.delay = nextDelay(b.delay, b.cfg.Multiplier, b.cfg.MaxDelay)
	return d
}

// Reset disarms the countdown and restores the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deadline = time.Time{}
	b.delay = b.cfg.InitialDelay
}

// Remaining reports how long until the countdown expires. Zero means an
// attempt may be made now.
func (b *Backoff) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deadline.IsZero() {
		return 0
	}
	if r := b.deadline.Sub(b.now()); r > 0 {
		return r
	}
	return 0
}

// Wait blocks until the countdown expires or ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	return Wait(ctx, b.Remaining())
}
