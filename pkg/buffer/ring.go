package buffer

// ByteRing is a fixed-capacity byte ring. Writing past capacity overwrites
// the oldest bytes. Index 0 is always the oldest retained byte.
//
// ByteRing is not safe for concurrent use.
type ByteRing struct {
	buf   []byte
	head  int // index of the oldest byte
	count int
}

// NewByteRing returns an empty ring holding at most capacity bytes.
func NewByteRing(capacity int) *ByteRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &ByteRing{buf: make([]byte, capacity)}
}

// Write appends p and returns how many of the oldest bytes were overwritten.
func (r *ByteRing) Write(p []byte) (dropped int) {
	capacity := len(r.buf)
	if len(p) >= capacity {
		// Only the tail of p survives.
		dropped = r.count + len(p) - capacity
		copy(r.buf, p[len(p)-capacity:])
		r.head = 0
		r.count = capacity
		return dropped
	}

	if overflow := r.count + len(p) - capacity; overflow > 0 {
		r.Discard(overflow)
		dropped = overflow
	}

	tail := (r.head + r.count) % capacity
	n := copy(r.buf[tail:], p)
	copy(r.buf, p[n:])
	r.count += len(p)
	return dropped
}

// At returns the byte i positions after the oldest byte. i must be < Len.
func (r *ByteRing) At(i int) byte {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Copy returns a fresh slice of bytes [start, end).
func (r *ByteRing) Copy(start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if end > r.count {
		end = r.count
	}
	if start >= end {
		return nil
	}
	out := make([]byte, end-start)
	for i := range out {
		out[i] = r.At(start + i)
	}
	return out
}

// Discard drops the n oldest bytes.
func (r *ByteRing) Discard(n int) {
	if n <= 0 {
		return
	}
	if n >= r.count {
		r.Reset()
		return
	}
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
}

// Reset empties the ring.
func (r *ByteRing) Reset() {
	r.head = 0
	r.count = 0
}

// Len returns the number of retained bytes.
func (r *ByteRing) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *ByteRing) Cap() int { return len(r.buf) }
