package buffer

import (
	"context"
)

// Buffer is a bounded, thread-safe FIFO of items of type T.
type Buffer[T any] interface {
	// Write adds an item. Under DropOldest it never blocks; a full buffer
	// evicts its oldest item first.
	Write(item T) error

	// Read removes one item without blocking.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadContext removes one item, blocking until an item is available,
	// the buffer is closed or ctx is done.
	ReadContext(ctx context.Context) (T, error)

	// Drain removes and returns every buffered item in order.
	Drain() []T

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close wakes every blocked reader. Later writes fail with ErrAlreadyStopped.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item lost to the overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Statistics are always collected; Prometheus export is enabled with WithMetrics.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
