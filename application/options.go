package application

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/threadgate/domain/cache"
	"github.com/felixgeelhaar/threadgate/infrastructure/logging"
	"github.com/felixgeelhaar/threadgate/infrastructure/poll"
	"github.com/felixgeelhaar/threadgate/infrastructure/store"
)

// PollFunc waits for the read path to satisfy predicate.
type PollFunc func(
	ctx context.Context,
	cfg poll.Config,
	predicate func(*store.PostSnapshot) bool,
	fetch func(context.Context) (*store.PostSnapshot, error),
) (*store.PostSnapshot, poll.Report, error)

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithPollConfig sets the attempt budget and delay of reconciliation.
func WithPollConfig(cfg poll.Config) Option {
	return func(o *Orchestrator) {
		o.pollConfig = cfg
	}
}

// WithPoller replaces the poll loop.
func WithPoller(p PollFunc) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.poll = p
		}
	}
}

// WithCache sets the view cache invalidated after a save.
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithNotifier sets where user-visible save results are delivered.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithMetrics sets the save metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithTracer sets the tracer spans of each save are started on.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}
