package tcp

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/metric"
	"github.com/c360/sensorfusion/pkg/lifecycle"
	"github.com/c360/sensorfusion/pkg/retry"
)

// ChunkHandler receives each non-empty read in arrival order. The slice is
// owned by the handler. ctx belongs to the serve loop.
type ChunkHandler func(ctx context.Context, chunk []byte) error

// Stats is a snapshot of server counters.
type Stats struct {
	Connections int64 `json:"connections"`
	Preemptions int64 `json:"preemptions"`
	Chunks      int64 `json:"chunks"`
	Bytes       int64 `json:"bytes"`
	Disconnects int64 `json:"disconnects"`
	Rebinds     int64 `json:"rebinds"`
	Errors      int64 `json:"errors"`
}

// Server accepts one client at a time on a TCP listener and hands every
// chunk it reads to a ChunkHandler. A newer pending connection preempts the
// current client.
type Server struct {
	cfg      Config
	opts     options
	logger   *slog.Logger
	metrics  *serverMetrics
	registry *metric.MetricsRegistry

	mu       sync.Mutex
	started  bool
	listener *net.TCPListener
	client   *net.TCPConn
	session  string
	group    *lifecycle.Group
	reporter *bus.Reporter
	rebind   *retry.Backoff

	closeNotices rate.Sometimes

	connections atomic.Int64
	preemptions atomic.Int64
	chunks      atomic.Int64
	bytes       atomic.Int64
	disconnects atomic.Int64
	rebinds     atomic.Int64
}

// NewServer validates cfg. Nothing is bound until Start.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	o := options{unhandled: bus.Continue}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default().With("pid", os.Getpid())
	}
	logger = logger.With("component", "tcp-server", "channel", cfg.Name)

	metrics, err := newServerMetrics(o.registry, cfg.Name)
	if err != nil {
		return nil, errors.WrapTransient(err, "tcp-server", "New", "metrics registration")
	}

	return &Server{
		cfg:          cfg,
		opts:         o,
		logger:       logger,
		metrics:      metrics,
		registry:     o.registry,
		rebind:       retry.Fixed(cfg.RebindBackoff),
		closeNotices: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}, nil
}

// Start binds the listener and starts the accept and receive loop. onError
// may be nil, in which case the unhandled decision applies. Start may be
// called once.
func (s *Server) Start(ctx context.Context, onChunk ChunkHandler, onError bus.ErrorPolicy) error {
	if onChunk == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: nil chunk handler", errors.ErrInvalidConfig),
			"tcp-server", "Start", "handler validation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "tcp-server", "Start", "start")
	}

	bindCfg := retry.Quick()
	bindCfg.MaxAttempts = 3
	if err := retry.Do(ctx, bindCfg, s.bindLocked); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrBindFailed, err),
			"tcp-server", "Start", "listener bind")
	}

	s.started = true
	s.reporter = bus.NewReporter(s.cfg.Name, s.logger, onError, s.opts.unhandled, s.registry)
	s.group = lifecycle.NewGroup(nil, "tcp:"+s.cfg.Name)
	s.group.Go("serve", func(ctx context.Context) {
		s.serve(ctx, onChunk)
	})

	s.logger.Info("TCP server listening", "address", s.listener.Addr().String())
	return nil
}

func (s *Server) bindLocked() error {
	addr, err := net.ResolveTCPAddr("tcp", s.cfg.address())
	if err != nil {
		return retry.NonRetryable(err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// serve is the single accept+receive loop.
func (s *Server) serve(ctx context.Context, onChunk ChunkHandler) {
	buf := make([]byte, s.cfg.ReadBufferSize)

	for ctx.Err() == nil {
		ln, client := s.handles()

		if ln == nil {
			if !s.rebindListener(ctx) {
				return
			}
			continue
		}

		if client == nil {
			conn, err := s.acceptWithin(ln, s.cfg.PollTimeout)
			if err != nil {
				if isTimeout(err) {
					continue
				}
				if !s.listenerFailed(ctx, err) {
					return
				}
				continue
			}
			s.attach(conn, false)
			continue
		}

		_ = client.SetReadDeadline(time.Now().Add(s.cfg.PollTimeout))
		n, err := client.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks.Add(1)
			s.bytes.Add(int64(n))
			s.metrics.recordChunk(n)

			if herr := s.deliver(ctx, onChunk, chunk); herr != nil {
				if s.reporter.Report(ctx, herr) == bus.Stop {
					s.halt()
					return
				}
			}
		}

		switch {
		case err == nil && n > 0:
			continue
		case err != nil && isTimeout(err):
			if !s.pollPending(ctx, ln) {
				return
			}
			continue
		case ctx.Err() != nil:
			return
		}

		// A zero-length read or any other failure loses the client.
		cause := err
		if cause == nil || stderrors.Is(cause, io.EOF) {
			cause = errors.ErrPeerClosed
		} else {
			cause = fmt.Errorf("%w: %w", errors.ErrConnectionLost, cause)
		}
		s.detach(client)
		if s.reporter.Report(ctx, errors.WrapTransient(cause, "tcp-server", "serve", "client read")) == bus.Stop {
			s.halt()
			return
		}
	}
}

// pollPending looks for a pending connection while a client is attached. A
// pending connection replaces the current client.
func (s *Server) pollPending(ctx context.Context, ln *net.TCPListener) bool {
	conn, err := s.acceptWithin(ln, s.cfg.PreemptPoll)
	if err == nil {
		s.attach(conn, true)
		return true
	}
	if isTimeout(err) {
		return true
	}
	return s.listenerFailed(ctx, err)
}

func (s *Server) acceptWithin(ln *net.TCPListener, d time.Duration) (*net.TCPConn, error) {
	_ = ln.SetDeadline(time.Now().Add(d))
	return ln.AcceptTCP()
}

// listenerFailed drops the listener and any client so the loop rebinds. It
// reports false when the loop must exit.
func (s *Server) listenerFailed(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	s.mu.Lock()
	ln, client := s.listener, s.client
	s.listener, s.client, s.session = nil, nil, ""
	s.mu.Unlock()
	if client != nil {
		s.closeQuietly("client", client)
		s.disconnects.Add(1)
		s.metrics.recordDetach()
	}
	s.closeQuietly("listener", ln)
	s.rebind.Arm()

	if s.reporter.Report(ctx, errors.WrapTransient(err, "tcp-server", "serve", "accept")) == bus.Stop {
		s.halt()
		return false
	}
	return true
}

func (s *Server) rebindListener(ctx context.Context) bool {
	if err := s.rebind.Wait(ctx); err != nil {
		return false
	}

	s.rebinds.Add(1)
	s.metrics.recordRebind()

	s.mu.Lock()
	if s.group.Signalled() {
		s.mu.Unlock()
		return false
	}
	err := s.bindLocked()
	s.mu.Unlock()

	if err != nil {
		s.rebind.Arm()
		if s.reporter.Report(ctx, errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrBindFailed, err),
			"tcp-server", "serve", "listener rebind")) == bus.Stop {
			s.halt()
			return false
		}
		return true
	}

	s.rebind.Reset()
	s.logger.Info("TCP listener rebound", "address", s.cfg.address())
	return true
}

// deliver invokes the handler and converts a panic into an error.
func (s *Server) deliver(ctx context.Context, onChunk ChunkHandler, chunk []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrHandlerFailed, errors.FromPanic(r)),
				"tcp-server", "serve", "chunk handler")
		}
	}()
	if herr := onChunk(ctx, chunk); herr != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrHandlerFailed, herr),
			"tcp-server", "serve", "chunk handler")
	}
	return nil
}

func (s *Server) attach(conn *net.TCPConn, preempt bool) {
	session := uuid.NewString()

	s.mu.Lock()
	if s.group.Signalled() {
		s.mu.Unlock()
		s.closeQuietly("client", conn)
		return
	}
	old := s.client
	s.client = conn
	s.session = session
	s.mu.Unlock()

	if old != nil {
		s.closeQuietly("client", old)
		s.preemptions.Add(1)
	}
	s.connections.Add(1)
	s.metrics.recordAccept(old != nil && preempt)

	s.logger.Info("TCP client attached",
		"session", session, "remote", conn.RemoteAddr().String(), "preempted", old != nil)
}

func (s *Server) detach(conn *net.TCPConn) {
	s.mu.Lock()
	session := s.session
	if s.client == conn {
		s.client = nil
		s.session = ""
	}
	s.mu.Unlock()

	s.closeQuietly("client", conn)
	s.disconnects.Add(1)
	s.metrics.recordDetach()
	s.logger.Info("TCP client detached", "session", session)
}

func (s *Server) handles() (*net.TCPListener, *net.TCPConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener, s.client
}

// halt signals the loop and closes both sockets without waiting.
func (s *Server) halt() {
	s.mu.Lock()
	if s.group != nil {
		s.group.Signal()
	}
	ln, client := s.listener, s.client
	s.listener, s.client, s.session = nil, nil, ""
	s.mu.Unlock()

	if client != nil {
		s.closeQuietly("client", client)
		s.metrics.recordDetach()
	}
	if ln != nil {
		s.closeQuietly("listener", ln)
	}
}

// closeQuietly swallows close failures, logging them as rate-limited notices.
func (s *Server) closeQuietly(what string, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
		s.closeNotices.Do(func() {
			s.logger.Debug("Ignoring close failure", "socket", what, "error", err)
		})
	}
}

// Stop closes the client and listener and waits for the loop to exit.
// Safe to call more than once, before Start, and from the chunk handler.
func (s *Server) Stop(ctx context.Context) error {
	s.halt()

	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Join(ctx)
}

// Done is closed once the loop has exited. Before Start it is never closed.
func (s *Server) Done() <-chan struct{} {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return make(chan struct{})
	}
	return g.Done()
}

// Addr returns the bound listener address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Session returns the id of the attached client, or "".
func (s *Server) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	var errs int64
	s.mu.Lock()
	if s.reporter != nil {
		errs = s.reporter.Total()
	}
	s.mu.Unlock()

	return Stats{
		Connections: s.connections.Load(),
		Preemptions: s.preemptions.Load(),
		Chunks:      s.chunks.Load(),
		Bytes:       s.bytes.Load(),
		Disconnects: s.disconnects.Load(),
		Rebinds:     s.rebinds.Load(),
		Errors:      errs,
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}
