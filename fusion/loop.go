package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/messages"
	"github.com/c360/sensorfusion/metric"
	"github.com/c360/sensorfusion/pkg/timestamp"
)

// DefaultInterval is the decision period when none is configured.
const DefaultInterval = 50 * time.Millisecond

// CommandPublisher is satisfied by *codec.TypedPublisher[messages.Command].
type CommandPublisher interface {
	Publish(cmd messages.Command) error
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  *metric.MetricsRegistry
}

// LoopStats counts loop activity.
type LoopStats struct {
	Ticks         int64 `json:"ticks"`
	Commands      int64 `json:"commands"`
	PublishErrors int64 `json:"publish_errors"`
}

// Loop periodically snapshots the board, asks the decider for a command and
// publishes it. It stamps each command with a sequence number and the
// publish time.
type Loop struct {
	board    *Board
	decider  Decider
	pub      CommandPublisher
	interval time.Duration
	logger   *slog.Logger
	commands *prometheus.CounterVec

	seq           atomic.Uint64
	ticks         atomic.Int64
	published     atomic.Int64
	publishErrors atomic.Int64
}

// NewLoop validates its collaborators. Call Run to start it.
func NewLoop(board *Board, decider Decider, pub CommandPublisher, cfg LoopConfig) (*Loop, error) {
	if board == nil || decider == nil || pub == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: board, decider and publisher are required", errors.ErrInvalidConfig),
			"decision-loop", "New", "dependency validation")
	}
	if cfg.Interval < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: interval %v", errors.ErrInvalidConfig, cfg.Interval),
			"decision-loop", "New", "interval validation")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Loop{
		board:    board,
		decider:  decider,
		pub:      pub,
		interval: cfg.Interval,
		logger:   logger.With("component", "decision-loop"),
	}

	if cfg.Metrics != nil {
		l.commands = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "decision",
			Name:      "commands_total",
			Help:      "Commands published by the decision loop",
		}, []string{"action"})
		if err := cfg.Metrics.RegisterCounterVec("decision", "commands", l.commands); err != nil {
			return nil, errors.WrapTransient(err, "decision-loop", "New", "metrics registration")
		}
	}
	return l, nil
}

// Run ticks until ctx is done and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("Decision loop started", "interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Decision loop stopped", "ticks", l.ticks.Load(), "commands", l.published.Load())
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one decision. It returns the published command, if any.
func (l *Loop) Tick() (messages.Command, bool) {
	l.ticks.Add(1)

	cmd, ok := l.decider.Decide(l.board.Snapshot())
	if !ok {
		return messages.Command{}, false
	}

	cmd.SeqNo = l.seq.Add(1)
	cmd.PubTimestampNs = timestamp.NowNs()

	if err := l.pub.Publish(cmd); err != nil {
		l.publishErrors.Add(1)
		l.logger.Warn("Command publish failed", "seq_no", cmd.SeqNo, "action", cmd.Action.String(), "error", err)
		return cmd, false
	}

	l.published.Add(1)
	if l.commands != nil {
		l.commands.WithLabelValues(cmd.Action.String()).Inc()
	}
	l.logger.Debug("Command published", "seq_no", cmd.SeqNo, "action", cmd.Action.String(), "reason", cmd.Reason)
	return cmd, true
}

// Stats returns the loop counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Ticks:         l.ticks.Load(),
		Commands:      l.published.Load(),
		PublishErrors: l.publishErrors.Load(),
	}
}
