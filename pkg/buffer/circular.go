package buffer

import (
	"context"
	"sync"

	"github.com/c360/sensorfusion/errors"
)

type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]

	notEmpty *sync.Cond
	closed   bool
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Buffer", "New", "capacity must be positive")
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsChannel)
		if err != nil {
			return nil, errors.WrapTransient(err, "Buffer", "New", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	cb.notEmpty = sync.NewCond(&cb.mu)

	return cb, nil
}

// Write appends item, applying the overflow policy when the buffer is full.
// The drop callback runs after the lock is released.
func (cb *circularBuffer[T]) Write(item T) error {
	dropped, didDrop, err := cb.write(item)
	if didDrop && cb.opts.dropCallback != nil {
		cb.opts.dropCallback(dropped)
	}
	return err
}

func (cb *circularBuffer[T]) write(item T) (dropped T, didDrop bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return dropped, false, errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		cb.stats.Drop()
		if cb.metrics != nil {
			cb.metrics.recordDrop()
		}
		if cb.opts.overflowPolicy == DropNewest {
			return item, true, nil
		}
		dropped, didDrop = cb.popLocked(), true
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}

	cb.notEmpty.Signal()
	return dropped, didDrop, nil
}

// popLocked removes the oldest item. Caller holds mu and size > 0.
func (cb *circularBuffer[T]) popLocked() T {
	var zero T
	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--
	return item
}

func (cb *circularBuffer[T]) recordReadLocked() {
	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordRead(cb.size, cb.capacity)
	}
}

// Read removes one item without blocking.
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}

	item := cb.popLocked()
	cb.recordReadLocked()
	return item, true
}

// ReadContext blocks until an item is available, the buffer is closed or ctx is done.
// Items still buffered are returned before ErrAlreadyStopped is reported, but
// never once ctx is done.
func (cb *circularBuffer[T]) ReadContext(ctx context.Context) (T, error) {
	var zero T

	// The wake-up takes the lock so it cannot slip in between the
	// condition check below and Wait.
	stop := context.AfterFunc(ctx, func() {
		cb.mu.Lock()
		cb.notEmpty.Broadcast()
		cb.mu.Unlock()
	})
	defer stop()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if cb.size > 0 {
			break
		}
		if cb.closed {
			return zero, errors.ErrAlreadyStopped
		}
		cb.notEmpty.Wait()
	}

	item := cb.popLocked()
	cb.recordReadLocked()
	return item, nil
}

// Drain removes and returns every buffered item in FIFO order.
func (cb *circularBuffer[T]) Drain() []T {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		return nil
	}

	result := make([]T, 0, cb.size)
	for cb.size > 0 {
		result = append(result, cb.popLocked())
		cb.stats.Read()
	}

	cb.stats.UpdateSize(0)
	if cb.metrics != nil {
		cb.metrics.updateSize(0, cb.capacity)
	}
	return result
}

// Size returns the current number of items in the buffer.
func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity
}

// Stats returns buffer statistics.
func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close marks the buffer closed and wakes every blocked reader. Idempotent.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true
	cb.notEmpty.Broadcast()
	return nil
}
