package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/c360/sensorfusion/messages"
)

// Case is one of the delivery patterns the tablet link produces.
type Case int

// Delivery patterns, numbered as typed at the prompt.
const (
	CaseAtomic Case = iota + 1
	CaseFragmented
	CaseIncomplete
	CaseCoalesced
)

func (c Case) String() string {
	switch c {
	case CaseAtomic:
		return "atomic"
	case CaseFragmented:
		return "fragmented"
	case CaseIncomplete:
		return "incomplete"
	case CaseCoalesced:
		return "coalesced"
	default:
		return fmt.Sprintf("case(%d)", int(c))
	}
}

// ParseCase accepts a case number or name.
func ParseCase(s string) (Case, error) {
	for c := CaseAtomic; c <= CaseCoalesced; c++ {
		if s == c.String() || s == fmt.Sprint(int(c)) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown case %q: want 1-4 or atomic, fragmented, incomplete, coalesced", s)
}

// resCycle is the discriminator sequence, advanced once per case sent.
var resCycle = []int{0, 1, 2, 99}

// Options shape the bytes a Simulator writes.
type Options struct {
	Newline  bool
	MinChunk int
	MaxChunk int
	Jitter   time.Duration
}

// Result describes one case as sent.
type Result struct {
	Case   Case
	Res    int
	SeqNos []uint64
	Bytes  int
	Chunks int
}

// Simulator writes tablet frames to w. It is not safe for concurrent use.
type Simulator struct {
	opts  Options
	rng   *rand.Rand
	now   func() time.Time
	sleep func(time.Duration)

	seq   uint64
	count int
}

// NewSimulator returns a simulator seeded from seed.
func NewSimulator(opts Options, seed uint64) (*Simulator, error) {
	if opts.MinChunk < 1 {
		return nil, fmt.Errorf("min chunk must be >= 1, got %d", opts.MinChunk)
	}
	if opts.MaxChunk < opts.MinChunk {
		return nil, fmt.Errorf("max chunk %d is below min chunk %d", opts.MaxChunk, opts.MinChunk)
	}
	return &Simulator{
		opts:  opts,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:   time.Now,
		sleep: time.Sleep,
		seq:   1,
	}, nil
}

// Send writes one case to w.
func (s *Simulator) Send(w io.Writer, c Case) (Result, error) {
	s.count++
	res := resCycle[(s.count-1)%len(resCycle)]
	r := Result{Case: c, Res: res, Chunks: 1}

	frame, err := s.frame(res)
	if err != nil {
		return r, err
	}

	switch c {
	case CaseAtomic:
		r.SeqNos = []uint64{s.seq}
		r.Bytes = len(frame)
		err = writeAll(w, frame)
		s.seq++

	case CaseFragmented:
		r.SeqNos = []uint64{s.seq}
		r.Bytes = len(frame)
		r.Chunks, err = s.sendChunked(w, frame)
		s.seq++

	case CaseIncomplete:
		cut := max(1, len(frame)-(1+s.rng.IntN(12)))
		r.SeqNos = []uint64{s.seq}
		r.Bytes = cut
		err = writeAll(w, frame[:cut])
		s.seq++

	case CaseCoalesced:
		s.seq++
		second, ferr := s.frame(res)
		if ferr != nil {
			return r, ferr
		}
		r.SeqNos = []uint64{s.seq - 1, s.seq}
		joined := append(frame, second...)
		r.Bytes = len(joined)
		err = writeAll(w, joined)
		s.seq++

	default:
		return r, fmt.Errorf("unknown case %d", int(c))
	}
	return r, err
}

// frame encodes a sample envelope carrying the current sequence number.
func (s *Simulator) frame(res int) ([]byte, error) {
	products := []messages.ProductScan{}
	env := messages.TabletEnvelope{
		Res:              res,
		DriverInstanceID: 1,
		SeqNo:            s.seq,
		PubTimestamp:     s.now().UnixMilli(),
		Command:          []int{0, 3}[s.rng.IntN(2)],
		Products:         &products,
		WorkType:         s.rng.IntN(3),
		Measure:          s.rng.IntN(2),
		Payload: &messages.TabletPayload{
			ForkHeightMM:  s.rng.IntN(1501),
			ForkForwardMM: s.rng.IntN(3001),
			Note:          "hello_tablet",
		},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if s.opts.Newline {
		data = append(data, '\n')
	}
	return data, nil
}

func (s *Simulator) sendChunked(w io.Writer, data []byte) (int, error) {
	n := s.opts.MinChunk + s.rng.IntN(s.opts.MaxChunk-s.opts.MinChunk+1)
	chunks := splitChunks(data, n)
	for i, chunk := range chunks {
		if err := writeAll(w, chunk); err != nil {
			return i, err
		}
		if s.opts.Jitter > 0 && i != len(chunks)-1 {
			s.sleep(time.Duration(s.rng.Int64N(int64(s.opts.Jitter) + 1)))
		}
	}
	return len(chunks), nil
}

// splitChunks cuts data into n nearly equal non-empty pieces. n is capped
// at len(data).
func splitChunks(data []byte, n int) [][]byte {
	if n <= 1 || len(data) == 0 {
		return [][]byte{data}
	}
	n = min(n, len(data))

	base, rem := len(data)/n, len(data)%n
	out := make([][]byte, 0, n)
	off := 0
	for i := range n {
		size := base
		if i < rem {
			size++
		}
		out = append(out, data[off:off+size])
		off += size
	}
	return out
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
