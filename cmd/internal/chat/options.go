package chat

import (
	"log/slog"
	"time"

	"huddle/cmd/internal/metrics"
)

type options struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	workers int
}

// Option configures the chat components.
type Option func(*options)

// WithLogger sets the logger used at operation boundaries.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics enables counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides the wall clock used for summary timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithReadWorkers bounds the parallel updates of MarkConversationRead.
func WithReadWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
		workers: defaultReadWorkers,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
