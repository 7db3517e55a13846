package bus_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/bus/bustest"
	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/metric"
)

func newTestPublisher(t *testing.T, drv *bustest.Driver, topic string, opts ...bus.Option) *bus.Publisher {
	t.Helper()
	opts = append([]bus.Option{bus.WithDriver(drv)}, opts...)
	pub, err := bus.NewPublisher(bus.PublisherConfig{
		Endpoint:         testEndpoint,
		Topic:            topic,
		QueueCapacity:    16,
		ReconnectBackoff: 10 * time.Millisecond,
	}, opts...)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return pub.State() == bus.Connected }, time.Second, time.Millisecond)
	return pub
}

func TestNewPublisher_Validation(t *testing.T) {
	drv := bustest.New()

	tests := []struct {
		name string
		cfg  bus.PublisherConfig
	}{
		{"zero capacity", bus.PublisherConfig{Endpoint: testEndpoint, Topic: "command"}},
		{"negative capacity", bus.PublisherConfig{Endpoint: testEndpoint, Topic: "command", QueueCapacity: -3}},
		{"empty topic", bus.PublisherConfig{Endpoint: testEndpoint, QueueCapacity: 4}},
		{"bad endpoint", bus.PublisherConfig{Endpoint: "tcp://", Topic: "command", QueueCapacity: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bus.NewPublisher(tt.cfg, bus.WithDriver(drv))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestPublisher_RoundTrip(t *testing.T) {
	drv := bustest.New()
	var got collector

	sub := newTestSubscriber(t, drv, "command", got.handle)
	defer stopWithin(t, sub)
	pub := newTestPublisher(t, drv, "command")
	defer stopWithin(t, pub)

	require.NoError(t, pub.Publish([]byte("hold")))
	require.NoError(t, pub.Publish([]byte("pick")))

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"hold", "pick"}, got.snapshot())
	assert.Equal(t, int64(2), pub.Stats().Sent)
}

func TestPublisher_NilPayload(t *testing.T) {
	drv := bustest.New()
	pub := newTestPublisher(t, drv, "command")

	err := pub.Publish(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNilPayload)
	assert.True(t, errors.IsInvalid(err))

	stopWithin(t, pub)

	// After stop even a nil payload is silently ignored.
	assert.NoError(t, pub.Publish(nil))
}

func TestPublisher_PublishAfterStopIsIgnored(t *testing.T) {
	drv := bustest.New()
	pub := newTestPublisher(t, drv, "command")
	stopWithin(t, pub)

	before := pub.Stats()
	for i := 0; i < 10; i++ {
		assert.NoError(t, pub.Publish([]byte("late")))
	}
	after := pub.Stats()

	assert.Equal(t, before.Enqueued, after.Enqueued)
	assert.Equal(t, before.Sent, after.Sent)
	assert.Equal(t, bus.Draining, pub.State())
}

func TestPublisher_SendFailureRebinds(t *testing.T) {
	drv := bustest.New()
	var got collector
	sub := newTestSubscriber(t, drv, "command", got.handle)
	defer stopWithin(t, sub)

	errs := make(chan error, 4)
	pub := newTestPublisher(t, drv, "command", bus.WithErrorPolicy(func(_ context.Context, err error) bool {
		errs <- err
		return true
	}))
	defer stopWithin(t, pub)

	drv.FailSend(stderrors.New("broken pipe"))
	require.NoError(t, pub.Publish([]byte("lost")))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, errors.ErrConnectionLost)
	case <-time.After(time.Second):
		t.Fatal("send failure not reported")
	}

	drv.FailSend(nil)
	require.Eventually(t, func() bool { return drv.Binds.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, pub.Publish([]byte("delivered")))

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"delivered"}, got.snapshot())

	stats := pub.Stats()
	assert.Equal(t, int64(1), stats.Lost)
	assert.Equal(t, int64(1), stats.Reconnects)
}

func TestPublisher_BindFailurePolicyStop(t *testing.T) {
	drv := bustest.New()
	drv.FailBind(stderrors.New("address already in use"))

	pub, err := bus.NewPublisher(bus.PublisherConfig{Endpoint: testEndpoint, Topic: "command", QueueCapacity: 4},
		bus.WithDriver(drv), bus.WithUnhandled(bus.Stop))
	require.NoError(t, err)

	select {
	case <-pub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("publisher did not stop after bind failure")
	}

	assert.NoError(t, pub.Publish([]byte("ignored")))
	stopWithin(t, pub)
}

func TestPublisher_Metrics(t *testing.T) {
	drv := bustest.New()
	registry := metric.NewMetricsRegistry()

	pub := newTestPublisher(t, drv, "command", bus.WithMetrics(registry))
	defer stopWithin(t, pub)

	require.NoError(t, pub.Publish([]byte("abc")))
	require.Eventually(t, func() bool { return pub.Stats().Sent == 1 }, time.Second, time.Millisecond)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["fusion_bus_messages_total"])
	assert.True(t, names["fusion_queue_writes_total"])
	assert.True(t, names["fusion_channel_state"])
}
