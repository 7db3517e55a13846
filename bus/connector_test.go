package bus

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/pkg/retry"
)

type fakeCloser struct {
	closed atomic.Int32
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed.Add(1)
	return f.err
}

func TestConnector_Lifecycle(t *testing.T) {
	c := newConnector[*fakeCloser](retry.Fixed(10 * time.Millisecond))

	var states []State
	c.onState = func(s State) { states = append(states, s) }

	sock := &fakeCloser{}
	dials := 0
	dial := func(context.Context) (*fakeCloser, error) {
		dials++
		return sock, nil
	}

	got, err := c.ensure(context.Background(), dial)
	require.NoError(t, err)
	assert.Same(t, sock, got)
	assert.Equal(t, Connected, c.current())

	// Already connected: no redial.
	_, err = c.ensure(context.Background(), dial)
	require.NoError(t, err)
	assert.Equal(t, 1, dials)

	c.fail()
	assert.Equal(t, Disconnected, c.current())
	assert.Equal(t, int32(1), sock.closed.Load())
	assert.Equal(t, int64(1), c.reconnectCount())

	c.drain()
	c.drain()
	assert.Equal(t, Draining, c.current())
	assert.Equal(t, int32(1), sock.closed.Load(), "released handle is not closed twice")

	_, err = c.ensure(context.Background(), dial)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)

	assert.Equal(t, []State{Connecting, Connected, Disconnected, Draining}, states)
}

func TestConnector_FailedDialArmsCountdown(t *testing.T) {
	c := newConnector[*fakeCloser](retry.Fixed(50 * time.Millisecond))

	boom := stderrors.New("refused")
	_, err := c.ensure(context.Background(), func(context.Context) (*fakeCloser, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, Disconnected, c.current())

	// The next attempt waits the countdown out; a short ctx expires first.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.ensure(ctx, func(context.Context) (*fakeCloser, error) {
		t.Fatal("dial attempted before countdown expired")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	start := time.Now()
	_, err = c.ensure(context.Background(), func(context.Context) (*fakeCloser, error) {
		return &fakeCloser{}, nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReconnectCountdown_IsFixed(t *testing.T) {
	b := reconnectCountdown(40 * time.Millisecond)

	first := b.Arm()
	assert.Equal(t, 40*time.Millisecond, first)
	for range 5 {
		assert.Equal(t, first, b.Arm(), "delay does not grow")
	}
	b.Reset()
	assert.Equal(t, first, b.Arm())

	assert.Equal(t, DefaultReconnectBackoff, reconnectCountdown(0).Arm())
}

func TestConnector_DrainDuringDialClosesNewHandle(t *testing.T) {
	c := newConnector[*fakeCloser](retry.Fixed(time.Millisecond))
	sock := &fakeCloser{}

	_, err := c.ensure(context.Background(), func(context.Context) (*fakeCloser, error) {
		c.drain()
		return sock, nil
	})
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
	assert.Equal(t, int32(1), sock.closed.Load())
	assert.Equal(t, Draining, c.current())
}

func TestConnector_CloseErrorsAreSwallowed(t *testing.T) {
	c := newConnector[*fakeCloser](retry.Fixed(time.Millisecond))
	var reported error
	c.onCloseErr = func(err error) { reported = err }

	sock := &fakeCloser{err: stderrors.New("already closed")}
	_, err := c.ensure(context.Background(), func(context.Context) (*fakeCloser, error) { return sock, nil })
	require.NoError(t, err)

	c.drain()
	assert.EqualError(t, reported, "already closed")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "draining", Draining.String())
	assert.Equal(t, "unknown", State(42).String())
}
