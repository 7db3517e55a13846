package tcp

import (
	"bytes"
	"context"
	stderrors "errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/metric"
)

type chunkSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
	n   int
}

func (c *chunkSink) handle(_ context.Context, chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(chunk)
	c.n++
	return nil
}

func (c *chunkSink) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func startServer(t *testing.T, onChunk ChunkHandler, onError func(context.Context, error) bool, opts ...Option) *Server {
	t.Helper()
	srv, err := NewServer(Config{Bind: "127.0.0.1", Port: 0, PollTimeout: 20 * time.Millisecond, RebindBackoff: 10 * time.Millisecond}, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background(), onChunk, onError))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ephemeral", Config{Bind: "127.0.0.1"}, false},
		{"any interface", Config{Bind: "*", Port: 8051}, false},
		{"empty bind", Config{Port: 8051}, false},
		{"negative port", Config{Port: -1}, true},
		{"port too large", Config{Port: 70000}, true},
		{"negative poll", Config{Port: 8051, PollTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{Bind: "*", Port: 8051}.withDefaults()
	assert.Equal(t, "tcp_8051", cfg.Name)
	assert.Equal(t, "", cfg.Bind)
	assert.Equal(t, DefaultPollTimeout, cfg.PollTimeout)
	assert.Equal(t, DefaultReadBufferSize, cfg.ReadBufferSize)
	assert.Equal(t, ":8051", cfg.address())
}

func TestServer_StartValidation(t *testing.T) {
	srv, err := NewServer(Config{Bind: "127.0.0.1"})
	require.NoError(t, err)

	err = srv.Start(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	var sink chunkSink
	require.NoError(t, srv.Start(context.Background(), sink.handle, nil))
	defer func() { require.NoError(t, srv.Stop(context.Background())) }()

	err = srv.Start(context.Background(), sink.handle, nil)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
}

func TestServer_DeliversChunks(t *testing.T) {
	var sink chunkSink
	srv := startServer(t, sink.handle, nil)

	conn := dial(t, srv)
	_, err := conn.Write([]byte(`{"res":1,`))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conn.Write([]byte(`"seq_no":2}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.String() == `{"res":1,"seq_no":2}` }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(len(`{"res":1,"seq_no":2}`)), srv.Stats().Bytes)
	assert.NotEmpty(t, srv.Session())
}

func TestServer_NewConnectionPreemptsClient(t *testing.T) {
	var sink chunkSink
	srv := startServer(t, sink.handle, nil)

	first := dial(t, srv)
	require.Eventually(t, func() bool { return srv.Stats().Connections == 1 }, 2*time.Second, 5*time.Millisecond)
	firstSession := srv.Session()

	second := dial(t, srv)
	require.Eventually(t, func() bool { return srv.Stats().Preemptions == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, firstSession, srv.Session())

	// The preempted client sees its connection closed.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := first.Read(make([]byte, 1))
	require.Error(t, err)
	assert.False(t, isTimeout(err))

	_, err = second.Write([]byte("from-second"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.String() == "from-second" }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_PeerCloseIsReportedAndServerKeepsAccepting(t *testing.T) {
	var sink chunkSink
	var mu sync.Mutex
	var reported []error
	policy := func(_ context.Context, err error) bool {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
		return true
	}
	srv := startServer(t, sink.handle, policy)

	first := dial(t, srv)
	_, err := first.Write([]byte("a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.String() == "a" }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, first.Close())

	require.Eventually(t, func() bool { return srv.Stats().Disconnects == 1 }, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], errors.ErrPeerClosed)
	assert.True(t, errors.IsTransient(reported[0]))
	mu.Unlock()

	second := dial(t, srv)
	_, err = second.Write([]byte("b"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.String() == "ab" }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_HandlerErrorStopDecision(t *testing.T) {
	boom := stderrors.New("downstream full")
	handler := func(context.Context, []byte) error { return boom }
	policy := func(_ context.Context, err error) bool { return !stderrors.Is(err, boom) }

	srv := startServer(t, handler, policy)
	conn := dial(t, srv)
	_, err := conn.Write([]byte("x"))
	require.NoError(t, err)

	select {
	case <-srv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on Stop decision")
	}
	assert.Nil(t, srv.Addr())
}

func TestServer_HandlerPanicIsContained(t *testing.T) {
	var calls atomic.Int64
	handler := func(_ context.Context, chunk []byte) error {
		if calls.Add(1) == 1 {
			panic("bad chunk")
		}
		return nil
	}
	var lastErr atomic.Value
	policy := func(_ context.Context, err error) bool {
		lastErr.Store(err)
		return true
	}

	srv := startServer(t, handler, policy)
	conn := dial(t, srv)
	_, err := conn.Write([]byte("1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	_, err = conn.Write([]byte("2"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	got, _ := lastErr.Load().(error)
	assert.ErrorIs(t, got, errors.ErrHandlerFailed)
}

func TestServer_StopFromHandler(t *testing.T) {
	var srv *Server
	stopped := make(chan error, 1)
	handler := func(ctx context.Context, _ []byte) error {
		stopped <- srv.Stop(ctx)
		return nil
	}

	srv = startServer(t, handler, nil)
	conn := dial(t, srv)
	_, err := conn.Write([]byte("stop"))
	require.NoError(t, err)

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return from Stop")
	}
	select {
	case <-srv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("serve loop did not exit")
	}
}

func TestServer_StopIsIdempotent(t *testing.T) {
	unstarted, err := NewServer(Config{Bind: "127.0.0.1"})
	require.NoError(t, err)
	assert.NoError(t, unstarted.Stop(context.Background()))

	var sink chunkSink
	srv := startServer(t, sink.handle, nil)
	_ = dial(t, srv)
	require.Eventually(t, func() bool { return srv.Stats().Connections == 1 }, 2*time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, srv.Stop(ctx))
		}()
	}
	wg.Wait()

	assert.NoError(t, srv.Stop(context.Background()))
	assert.Nil(t, srv.Addr())
	assert.Empty(t, srv.Session())
}

func TestServer_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	var sink chunkSink
	srv := startServer(t, sink.handle, nil, WithMetrics(registry))

	conn := dial(t, srv)
	_, err := conn.Write([]byte("12345"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.String() == "12345" }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(srv.metrics.connections))
	assert.Equal(t, float64(5), testutil.ToFloat64(srv.metrics.bytes))
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.metrics.connected))
}
