package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/c360/sensorfusion/codec"
	"github.com/c360/sensorfusion/config"
	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/framing"
	"github.com/c360/sensorfusion/fusion"
	"github.com/c360/sensorfusion/health"
	"github.com/c360/sensorfusion/input/tcp"
	"github.com/c360/sensorfusion/messages"
	"github.com/c360/sensorfusion/metric"
)

// component is anything the controller starts and must stop.
type component interface {
	Stop(ctx context.Context) error
	Done() <-chan struct{}
}

type namedComponent struct {
	name string
	component
}

// app owns every channel of the controller. Components are kept in start
// order and stopped in reverse.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *metric.MetricsRegistry
	board      *fusion.Board
	publisher  *codec.TypedPublisher[messages.Command]
	server     *tcp.Server
	extractor  *framing.Extractor[messages.TabletEnvelope]
	loop       *fusion.Loop
	metrics    *metric.Server
	health     *health.Monitor
	components []namedComponent
}

// skipInvalid keeps a channel running through bad input and transport
// faults and stops it only on fatal errors.
func skipInvalid(_ context.Context, err error) bool {
	return !errors.IsFatal(err)
}

func newApp(cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) (a *app, err error) {
	a = &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		board:    fusion.NewBoard(),
		health:   health.NewMonitor(cfg.Process.Name),
	}
	defer func() {
		if err != nil {
			_ = a.stop(context.Background())
		}
	}()

	if err := a.buildPublisher(); err != nil {
		return nil, err
	}
	if err := a.buildSubscribers(); err != nil {
		return nil, err
	}
	if cfg.TCP.Enabled {
		if err := a.buildTablet(); err != nil {
			return nil, err
		}
	}

	a.loop, err = fusion.NewLoop(a.board, fusion.HoldDecider{Thresholds: cfg.Thresholds}, a.publisher, fusion.LoopConfig{
		Interval: cfg.Decision.Interval.Std(),
		Logger:   logger,
		Metrics:  registry,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Process.MetricsAddr != "" {
		a.metrics = metric.NewServer(cfg.Process.MetricsAddr, "/metrics", registry)
		a.metrics.Handle("/healthz", a.health)
	}
	return a, nil
}

func (a *app) buildPublisher() error {
	name, ch, ok := single(a.cfg.Publishers)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: exactly one command publisher is required, have %d",
			errors.ErrInvalidConfig, len(a.cfg.Publishers)), "fusiond", "buildPublisher", "publisher selection")
	}

	pub, err := codec.NewTypedPublisher(ch.Publisher(name),
		codec.WithLogger[messages.Command](a.logger),
		codec.WithMetrics[messages.Command](a.registry),
		codec.WithErrorPolicy[messages.Command](skipInvalid))
	if err != nil {
		return fmt.Errorf("publisher %s: %w", name, err)
	}
	a.publisher = pub
	a.add(name, pub.Publisher())
	a.health.Register(name, publisherProbe(pub.Publisher()))
	return nil
}

func (a *app) buildSubscribers() error {
	names := make([]string, 0, len(a.cfg.Subscribers))
	for name := range a.cfg.Subscribers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ch := a.cfg.Subscribers[name]
		var (
			c   component
			err error
		)
		switch ch.Kind {
		case config.KindTagScan:
			c, err = subscribe[messages.TagScanStatus](a, name, ch, a.board.OnTagScan)
		case config.KindDistance:
			c, err = subscribe[messages.DistanceStatus](a, name, ch, a.board.OnDistance)
		case config.KindVolume:
			c, err = subscribe[messages.VolumeStatus](a, name, ch, a.board.OnVolume)
		default:
			err = fmt.Errorf("%w: kind %q", errors.ErrInvalidConfig, ch.Kind)
		}
		if err != nil {
			return fmt.Errorf("subscriber %s: %w", name, err)
		}
		a.add(name, c)
	}
	return nil
}

func subscribe[T any](a *app, name string, ch config.ChannelConfig, handler codec.Handler[T]) (component, error) {
	sub, err := codec.NewTypedSubscriber(ch.Subscriber(name), handler,
		codec.WithLogger[T](a.logger),
		codec.WithMetrics[T](a.registry),
		codec.WithErrorPolicy[T](skipInvalid))
	if err != nil {
		return nil, err
	}
	a.health.Register(name, subscriberProbe(sub.Subscriber()))
	return sub, nil
}

func (a *app) buildTablet() error {
	ext, err := framing.NewExtractor(a.cfg.TCP.Framing(), a.board.OnTablet,
		framing.WithLogger[messages.TabletEnvelope](a.logger),
		framing.WithMetrics[messages.TabletEnvelope](a.registry))
	if err != nil {
		return fmt.Errorf("tablet framing: %w", err)
	}
	a.extractor = ext
	a.add("tablet-framing", ext)
	a.health.Register("tablet-framing", extractorProbe(ext))

	srv, err := tcp.NewServer(a.cfg.TCP.Server(), tcp.WithLogger(a.logger), tcp.WithMetrics(a.registry))
	if err != nil {
		return fmt.Errorf("tablet server: %w", err)
	}
	a.server = srv
	a.add("tablet-server", srv)
	a.health.Register("tablet-server", serverProbe(srv))
	return nil
}

func (a *app) add(name string, c component) {
	a.components = append(a.components, namedComponent{name: name, component: c})
}

// run starts the server, the metrics endpoint and the decision loop, then
// blocks until ctx is cancelled or a channel halts on its own. A halted
// channel is an error so a supervisor can restart the process.
func (a *app) run(ctx context.Context) error {
	if a.metrics != nil {
		if err := a.metrics.Start(); err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		a.logger.Info("Metrics endpoint listening", "addr", a.metrics.Address())
	}

	if a.server != nil {
		if err := a.server.Start(ctx, a.extractor.Write, skipInvalid); err != nil {
			return fmt.Errorf("tablet server: %w", err)
		}
		a.logger.Info("Tablet channel listening", "addr", a.server.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.loop.Run(gctx)
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	for _, c := range a.components {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-c.Done():
				return fmt.Errorf("%w: channel %s halted", errors.ErrConnectionLost, c.name)
			}
		})
	}
	return g.Wait()
}

// stop shuts every component down in reverse start order and joins the
// errors.
func (a *app) stop(ctx context.Context) error {
	var errs []error
	if a.metrics != nil {
		if err := a.metrics.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics endpoint: %w", err))
		}
	}
	for i := len(a.components) - 1; i >= 0; i-- {
		c := a.components[i]
		if err := c.Stop(ctx); err != nil && !stderrors.Is(err, errors.ErrAlreadyStopped) {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return stderrors.Join(errs...)
}

func single[V any](m map[string]V) (string, V, bool) {
	var (
		name string
		val  V
	)
	if len(m) != 1 {
		return name, val, false
	}
	for k, v := range m {
		name, val = k, v
	}
	return name, val, true
}
