package main

import (
	"context"
	stderrors "errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorfusion/bus"
	"github.com/c360/sensorfusion/bus/bustest"
	"github.com/c360/sensorfusion/codec"
	"github.com/c360/sensorfusion/config"
	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/messages"
	"github.com/c360/sensorfusion/metric"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Process.MetricsAddr = ""
	for name, ch := range cfg.Subscribers {
		ch.Endpoint = "inproc://" + name
		cfg.Subscribers[name] = ch
	}
	cmd := cfg.Publishers[config.KindCommand]
	cmd.Endpoint = "inproc://command"
	cfg.Publishers[config.KindCommand] = cmd
	cfg.TCP.Bind = "127.0.0.1"
	cfg.TCP.Port = 0
	cfg.TCP.PollTimeout = config.Duration(10 * time.Millisecond)
	cfg.Decision.Interval = config.Duration(5 * time.Millisecond)
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startApp(t *testing.T, cfg *config.Config) (*app, context.CancelFunc, <-chan error) {
	t.Helper()
	bus.Register("inproc", bustest.New())

	a, err := newApp(cfg, quietLogger(), metric.NewMetricsRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		assert.NoError(t, a.stop(stopCtx))
	})
	return a, cancel, done
}

func TestApp_FusesInputs(t *testing.T) {
	drv := bustest.New()
	bus.Register("inproc", drv)
	cfg := testConfig()

	a, err := newApp(cfg, quietLogger(), metric.NewMetricsRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		assert.NoError(t, a.stop(stopCtx))
	}()

	require.Eventually(t, func() bool {
		return drv.Subscribers("inproc://volume") == 1 && a.server.Addr() != nil
	}, 2*time.Second, 5*time.Millisecond)

	payload, err := codec.Msgpack[messages.VolumeStatus]{}.Encode(messages.VolumeStatus{
		SourceID: "vol-1",
		SeqNo:    7,
		Payload:  messages.Volume{Width: 1.2, Height: 0.8, Depth: 1.0},
	})
	require.NoError(t, err)
	drv.Inject("inproc://volume", bus.Message{Topic: messages.TopicVolume, Payload: payload})

	conn, err := net.Dial("tcp", a.server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`noise{"res":1,"seq_no":3,"work_type":2}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := a.board.Snapshot()
		return snap.Volume.SeqNo == 7 && snap.Tablet.SeqNo == 3
	}, 2*time.Second, 5*time.Millisecond)

	snap := a.board.Snapshot()
	assert.Equal(t, "vol-1", snap.Volume.SourceID)
	assert.Equal(t, 2, snap.Tablet.WorkType)
	assert.False(t, snap.VolumeAt.IsZero())
	assert.True(t, snap.TagScanAt.IsZero(), "no tag scan was published")

	require.Eventually(t, func() bool { return a.loop.Stats().Ticks > 2 }, time.Second, 5*time.Millisecond)

	volume, ok := a.health.Get(config.KindVolume)
	require.True(t, ok)
	assert.True(t, volume.IsHealthy(), volume.Message)
	assert.Equal(t, int64(1), volume.Metrics.MessagesProcessed)
	tablet, ok := a.health.Get("tablet-server")
	require.True(t, ok)
	assert.True(t, tablet.IsHealthy(), tablet.Message)
	assert.False(t, a.health.Check().IsUnhealthy())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestApp_HaltedChannelEndsRun(t *testing.T) {
	a, _, done := startApp(t, testConfig())

	var victim namedComponent
	for _, c := range a.components {
		if c.name == config.KindDistance {
			victim = c
		}
	}
	require.NotNil(t, victim.component)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, victim.Stop(ctx))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrConnectionLost)
		assert.Contains(t, err.Error(), config.KindDistance)
	case <-time.After(2 * time.Second):
		t.Fatal("run ignored a halted channel")
	}

	status, ok := a.health.Get(config.KindDistance)
	require.True(t, ok)
	assert.True(t, status.IsUnhealthy())
	assert.True(t, a.health.Check().IsUnhealthy())
}

func TestApp_TCPDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.TCP.Enabled = false

	a, _, _ := startApp(t, cfg)
	assert.Nil(t, a.server)
	assert.Nil(t, a.extractor)
	assert.Len(t, a.components, 4)
}

func TestNewApp_RequiresOnePublisher(t *testing.T) {
	bus.Register("inproc", bustest.New())

	cfg := testConfig()
	cfg.Publishers["spare"] = config.ChannelConfig{
		Endpoint: "inproc://spare", Topic: config.KindCommand, Kind: config.KindCommand, QueueCapacity: 8,
	}
	_, err := newApp(cfg, quietLogger(), metric.NewMetricsRegistry())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))

	cfg.Publishers = nil
	_, err = newApp(cfg, quietLogger(), metric.NewMetricsRegistry())
	require.Error(t, err)
}

func TestSkipInvalid(t *testing.T) {
	ctx := context.Background()
	assert.True(t, skipInvalid(ctx, errors.WrapInvalid(errors.ErrParsingFailed, "t", "t", "t")))
	assert.True(t, skipInvalid(ctx, errors.ErrConnectionLost))
	assert.False(t, skipInvalid(ctx, errors.WrapFatal(errors.ErrUnknownDriver, "t", "t", "t")))
}

func TestParseArgs(t *testing.T) {
	t.Setenv("FUSION_CONFIG", "a.yaml, b.json")

	cli := parseArgs(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.Equal(t, []string{"a.yaml", "b.json"}, cli.ConfigPaths)

	cli = parseArgs(flag.NewFlagSet("test", flag.ContinueOnError), []string{
		"-config", "base.yaml", "-c", "site.json", "-log-level", "debug", "-shutdown-timeout", "3s", "-validate",
	})
	assert.Equal(t, []string{"base.yaml", "site.json"}, cli.ConfigPaths, "flags replace the environment")
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, 3*time.Second, cli.ShutdownTimeout)
	assert.True(t, cli.Validate)
}

func TestValidateFlags(t *testing.T) {
	assert.NoError(t, validateFlags(&CLIConfig{}))
	assert.Error(t, validateFlags(&CLIConfig{ConfigPaths: []string{filepath.Join(t.TempDir(), "absent.yaml")}}))
	assert.Error(t, validateFlags(&CLIConfig{ShutdownTimeout: -time.Second}))
	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true, ShutdownTimeout: -time.Second}))
}

func TestLoadConfig_FlagsWin(t *testing.T) {
	cfg, err := loadConfig(&CLIConfig{LogLevel: "debug", LogFormat: "text", ShutdownTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Process.LogLevel)
	assert.Equal(t, "text", cfg.Process.LogFormat)
	assert.Equal(t, 2*time.Second, cfg.Process.ShutdownTimeout.Std())

	_, err = loadConfig(&CLIConfig{LogLevel: "chatty"})
	assert.Error(t, err)
}

func TestSingle(t *testing.T) {
	name, v, ok := single(map[string]int{"only": 3})
	assert.True(t, ok)
	assert.Equal(t, "only", name)
	assert.Equal(t, 3, v)

	_, _, ok = single(map[string]int{})
	assert.False(t, ok)
}
