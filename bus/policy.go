package bus

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/c360/sensorfusion/errors"
	"github.com/c360/sensorfusion/metric"
)

// Decision is what a channel does after a non-fatal error.
type Decision int

const (
	// Continue keeps the channel running.
	Continue Decision = iota
	// Stop shuts the channel down.
	Stop
)

// String returns the decision name.
func (d Decision) String() string {
	if d == Stop {
		return "stop"
	}
	return "continue"
}

// ErrorPolicy is consulted after every non-fatal error. Returning true
// keeps the channel running. ctx identifies the loop the error occurred in
// and may be passed to the channel's Stop.
type ErrorPolicy func(ctx context.Context, err error) bool

// Always returns a policy that makes the same decision for every error.
func Always(d Decision) ErrorPolicy {
	return func(context.Context, error) bool { return d == Continue }
}

// Reporter logs, counts and adjudicates the errors of one channel. Layers
// built on top of a channel use their own Reporter with their own policy.
type Reporter struct {
	channel   string
	logger    *slog.Logger
	policy    ErrorPolicy
	unhandled Decision
	core      *metric.Metrics
	count     atomic.Int64
}

// NewReporter creates a reporter. unhandled is used when policy is nil.
// registry may be nil.
func NewReporter(channel string, logger *slog.Logger, policy ErrorPolicy, unhandled Decision, registry *metric.MetricsRegistry) *Reporter {
	if logger == nil {
		logger = slog.Default().With("channel", channel)
	}
	r := &Reporter{
		channel:   channel,
		logger:    logger,
		policy:    policy,
		unhandled: unhandled,
	}
	if registry != nil {
		r.core = registry.CoreMetrics()
	}
	return r
}

// Report logs err, then asks the policy what to do. A policy that panics
// counts as Stop.
func (r *Reporter) Report(ctx context.Context, err error) Decision {
	r.count.Add(1)
	class := errors.Classify(err)

	level := slog.LevelWarn
	if class != errors.ErrorTransient {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, "Channel error", "class", class.String(), "error", err)

	if r.core != nil {
		r.core.RecordError(r.channel, class.String())
	}

	d := r.decide(ctx, err)
	if r.core != nil {
		r.core.RecordDecision(r.channel, d.String())
	}
	if d == Stop {
		r.logger.Info("Error policy requested stop", "error", err)
	}
	return d
}

func (r *Reporter) decide(ctx context.Context, err error) (d Decision) {
	if r.policy == nil {
		return r.unhandled
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Error policy panicked",
				"error", errors.WrapFatal(errors.FromPanic(rec), "bus", "policy", "error policy"))
			d = Stop
		}
	}()

	if r.policy(ctx, err) {
		return Continue
	}
	return Stop
}

// Total returns the number of errors reported so far.
func (r *Reporter) Total() int64 {
	return r.count.Load()
}
