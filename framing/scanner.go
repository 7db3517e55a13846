package framing

import (
	"bytes"

	"github.com/c360/sensorfusion/pkg/buffer"
)

// ScanStats counts what a Scanner has done with its bytes.
type ScanStats struct {
	Frames       int64 `json:"frames"`
	GarbageBytes int64 `json:"garbage_bytes"`
	Resyncs      int64 `json:"resyncs"`
	Overflows    int64 `json:"overflows"`
	DroppedBytes int64 `json:"dropped_bytes"`
}

// Scanner finds top-level JSON objects in a byte stream by counting braces
// outside string literals. Scan state survives across writes, so a frame may
// arrive in any number of pieces.
//
// Scanner is not safe for concurrent use.
type Scanner struct {
	ring *buffer.ByteRing

	scanIndex  int
	frameStart int // -1 when no frame is open
	depth      int
	inString   bool
	escapeNext bool

	overflowed  bool
	stalePasses int

	resyncAfter int
	maxFrame    int
	lookahead   int
	key         []byte

	stats ScanStats
}

// NewScanner returns a scanner over a ring of cfg.Capacity bytes. Zero
// fields take their defaults.
func NewScanner(cfg Config) *Scanner {
	cfg = cfg.withDefaults()
	s := &Scanner{
		ring:        buffer.NewByteRing(cfg.Capacity),
		resyncAfter: cfg.ResyncAfterPasses,
		maxFrame:    cfg.MaxFrameBytes,
		lookahead:   cfg.Lookahead,
		key:         []byte(`"` + cfg.Discriminator + `"`),
	}
	s.reset()
	return s
}

func (s *Scanner) reset() {
	s.scanIndex = 0
	s.frameStart = -1
	s.depth = 0
	s.inString = false
	s.escapeNext = false
	s.overflowed = false
	s.stalePasses = 0
}

// Write appends p. If the ring had to drop old bytes the scan state is
// reset, since the dropped span probably ended mid-frame.
func (s *Scanner) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	if dropped := s.ring.Write(p); dropped > 0 {
		s.reset()
		s.overflowed = true
		s.stats.Overflows++
		s.stats.DroppedBytes += int64(dropped)
	}
}

// Next returns the next complete top-level object, removing its bytes from
// the buffer. It returns false when more input is needed. Call it until it
// returns false to drain frames that arrived together.
func (s *Scanner) Next() ([]byte, bool) {
	for {
		if frame, ok := s.scan(); ok {
			return frame, true
		}

		if s.frameStart < 0 {
			// Nothing in the buffer can start a frame.
			if n := s.ring.Len(); n > 0 {
				s.stats.GarbageBytes += int64(n)
				s.ring.Reset()
			}
			s.reset()
			return nil, false
		}

		s.stalePasses++
		var at int
		if s.shouldResync() {
			at = s.findResync(s.frameStart + 1)
		} else {
			// A complete frame already buffered behind the open one means
			// the open one was cut short.
			at = s.findClosedResync(s.frameStart + 1)
		}
		if at < 0 {
			return nil, false
		}
		s.ring.Discard(at)
		s.stats.Resyncs++
		s.stats.GarbageBytes += int64(at)
		s.reset()
	}
}

// scan advances scanIndex to the end of the buffer or to the end of a frame.
func (s *Scanner) scan() ([]byte, bool) {
	for ; s.scanIndex < s.ring.Len(); s.scanIndex++ {
		b := s.ring.At(s.scanIndex)

		if s.inString {
			switch {
			case s.escapeNext:
				s.escapeNext = false
			case b == '\\':
				s.escapeNext = true
			case b == '"':
				s.inString = false
			}
			continue
		}

		switch b {
		case '"':
			// Quotes outside an object are noise.
			if s.depth > 0 {
				s.inString = true
			}
		case '{':
			if s.depth == 0 {
				if s.scanIndex > 0 {
					// Leading noise. An earlier overflow still counts.
					s.stats.GarbageBytes += int64(s.scanIndex)
					s.ring.Discard(s.scanIndex)
					s.scanIndex = 0
				}
				s.frameStart = s.scanIndex
			}
			s.depth++
		case '}':
			// A stray close brace outside an object is skipped as noise.
			if s.depth == 0 {
				continue
			}
			s.depth--
			if s.depth == 0 {
				end := s.scanIndex + 1
				frame := s.ring.Copy(s.frameStart, end)
				s.ring.Discard(end)
				s.reset()
				s.stats.Frames++
				return frame, true
			}
		}
	}
	return nil, false
}

func (s *Scanner) shouldResync() bool {
	if s.overflowed || s.stalePasses > s.resyncAfter {
		return true
	}
	return s.maxFrame > 0 && s.ring.Len()-s.frameStart > s.maxFrame
}

// findResync looks for a '{' at or after from whose next lookahead bytes
// contain the quoted discriminator key. This is a heuristic: a nested object
// that starts with the same key is a false positive, and a key placed past
// the window is missed.
func (s *Scanner) findResync(from int) int {
	n := s.ring.Len()
	for i := from; i < n; i++ {
		if s.ring.At(i) != '{' {
			continue
		}
		end := i + 1 + s.lookahead
		if end > n {
			end = n
		}
		if bytes.Contains(s.ring.Copy(i+1, end), s.key) {
			return i
		}
	}
	return -1
}

// findClosedResync is findResync restricted to candidates whose object is
// already complete in the buffer.
func (s *Scanner) findClosedResync(from int) int {
	for {
		at := s.findResync(from)
		if at < 0 || s.closesAt(at) {
			return at
		}
		from = at + 1
	}
}

// closesAt reports whether the object opening at i is closed within the
// buffer, scanning with fresh string and depth state.
func (s *Scanner) closesAt(i int) bool {
	depth := 0
	inString, escaped := false, false
	for n := s.ring.Len(); i < n; i++ {
		b := s.ring.At(i)
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			if depth--; depth == 0 {
				return true
			}
		}
	}
	return false
}

// Incomplete reports whether a frame has been started but not closed.
func (s *Scanner) Incomplete() bool {
	return s.frameStart >= 0
}

// Buffered returns the number of bytes waiting to be scanned or consumed.
func (s *Scanner) Buffered() int {
	return s.ring.Len()
}

// Stats returns the scanner counters.
func (s *Scanner) Stats() ScanStats {
	return s.stats
}
