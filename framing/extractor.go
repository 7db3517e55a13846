package framing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/codec"
	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/pkg/lifecycle"
)

// Handler receives one decoded frame. ctx belongs to the parser loop.
type Handler[T any] func(ctx context.Context, frame T) error

// Stats is a snapshot of extractor counters.
type Stats struct {
	ScanStats
	Dispatched int64 `json:"dispatched"`
	Rejected   int64 `json:"rejected"`
	Buffered   int   `json:"buffered"`
}

// Extractor turns a stream of chunks into decoded frames of type T. Write
// only appends and wakes the parser goroutine, which drains every complete
// frame and calls the handler outside the buffer lock.
type Extractor[T any] struct {
	cfg      Config
	codec    codec.Codec[T]
	handler  Handler[T]
	logger   *slog.Logger
	reporter *bus.Reporter
	metrics  *extractorMetrics
	group    *lifecycle.Group

	mu       sync.Mutex
	scanner  *Scanner
	observed ScanStats

	wake chan struct{}

	incompleteNotices rate.Sometimes

	dispatched atomic.Int64
	rejected   atomic.Int64
}

// NewExtractor starts the parser goroutine.
func NewExtractor[T any](cfg Config, handler Handler[T], opts ...Option[T]) (*Extractor[T], error) {
	if handler == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: nil frame handler", errors.ErrInvalidConfig),
			"frame-extractor", "New", "handler validation")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := options[T]{codec: codec.JSON[T]{}, unhandled: bus.Continue}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default().With("pid", os.Getpid())
	}
	logger = logger.With("component", "frame-extractor", "channel", cfg.Name)

	metrics, err := newExtractorMetrics(o.registry, cfg.Name)
	if err != nil {
		return nil, errors.WrapTransient(err, "frame-extractor", "New", "metrics registration")
	}

	e := &Extractor[T]{
		cfg:               cfg,
		codec:             o.codec,
		handler:           handler,
		logger:            logger,
		reporter:          bus.NewReporter(cfg.Name, logger, o.policy, o.unhandled, o.registry),
		metrics:           metrics,
		group:             lifecycle.NewGroup(nil, "framing:"+cfg.Name),
		scanner:           NewScanner(cfg),
		wake:              make(chan struct{}, 1),
		incompleteNotices: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	e.group.Go("parse", e.parseLoop)
	return e, nil
}

// Write appends chunk to the ring buffer and wakes the parser. It never
// blocks on the handler and is a tcp.ChunkHandler. After Stop it does
// nothing.
func (e *Extractor[T]) Write(_ context.Context, chunk []byte) error {
	if len(chunk) == 0 || e.group.Signalled() {
		return nil
	}

	e.mu.Lock()
	e.scanner.Write(chunk)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return nil
}

func (e *Extractor[T]) parseLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		}
		if !e.drain(ctx) {
			return
		}
	}
}

// drain dispatches frames until the scanner needs more input. It returns
// false when the loop must exit.
func (e *Extractor[T]) drain(ctx context.Context) bool {
	for ctx.Err() == nil {
		e.mu.Lock()
		frame, ok := e.scanner.Next()
		incomplete := e.scanner.Incomplete()
		buffered := e.scanner.Buffered()
		stats := e.scanner.Stats()
		delta := ScanStats{
			Resyncs:      stats.Resyncs - e.observed.Resyncs,
			Overflows:    stats.Overflows - e.observed.Overflows,
			GarbageBytes: stats.GarbageBytes - e.observed.GarbageBytes,
		}
		e.observed = stats
		e.mu.Unlock()

		e.metrics.observe(delta, buffered)
		if delta.Resyncs > 0 {
			e.logger.Info("Resynchronised frame stream", "resyncs", delta.Resyncs)
		}

		if !ok {
			if incomplete {
				e.incompleteNotices.Do(func() {
					e.logger.Debug(errors.ErrFrameIncomplete.Error(), "buffered", buffered)
				})
			}
			return true
		}

		if err := e.dispatch(ctx, frame); err != nil {
			if e.reporter.Report(ctx, err) == bus.Stop {
				e.group.Signal()
				return false
			}
		}
	}
	return false
}

func (e *Extractor[T]) dispatch(ctx context.Context, frame []byte) (err error) {
	if err := Validate(frame, e.cfg.Discriminator); err != nil {
		e.metrics.recordReject()
		e.rejected.Add(1)
		return err
	}

	msg, err := e.codec.Decode(frame)
	if err != nil {
		e.metrics.recordReject()
		e.rejected.Add(1)
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrHandlerFailed, errors.FromPanic(r)),
				"frame-extractor", "dispatch", "frame handler")
		}
	}()

	e.metrics.recordDispatch()
	e.dispatched.Add(1)
	if herr := e.handler(ctx, msg); herr != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrHandlerFailed, herr),
			"frame-extractor", "dispatch", "frame handler")
	}
	return nil
}

// Stop ends the parser goroutine and waits for it. Buffered bytes are
// discarded. Safe to call more than once and from the handler.
func (e *Extractor[T]) Stop(ctx context.Context) error {
	e.group.Signal()
	return e.group.Join(ctx)
}

// Done is closed once the parser goroutine has exited.
func (e *Extractor[T]) Done() <-chan struct{} {
	return e.group.Done()
}

// Stats returns a snapshot of the extractor counters.
func (e *Extractor[T]) Stats() Stats {
	e.mu.Lock()
	scan := e.scanner.Stats()
	buffered := e.scanner.Buffered()
	e.mu.Unlock()

	return Stats{
		ScanStats:  scan,
		Dispatched: e.dispatched.Load(),
		Rejected:   e.rejected.Load(),
		Buffered:   buffered,
	}
}
