// Package retry provides backoff logic for transient failures.
//
// # Core Functions
//
//   - Do: execute a function a bounded number of times with exponential backoff
//   - Backoff: an explicit, never-exhausted countdown for reconnect loops
//   - Wait: a context-aware sleep
//
// # Reconnect Countdown
//
// Background loops do not sleep ambiently between connection attempts.
// They arm a Backoff when an attempt fails and wait for it before the next one:
//
//	b := retry.Fixed(500 * time.Millisecond)
//	for {
//	    if err := b.Wait(ctx); err != nil {
//	        return // stopped
//	    }
//	    sock, err := dial()
//	    if err != nil {
//	        b.Arm()
//	        continue
//	    }
//	    b.Reset()
//	    ...
//	}
//
// Because the countdown is state rather than a sleep, tests can inspect
// Remaining without waiting in real time.
//
// # Bounded Retries
//
//	err := retry.Do(ctx, retry.Quick(), func() error {
//	    return listen()
//	})
//
// All waits respect context cancellation.
package retry
