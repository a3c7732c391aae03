package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// Router delivers every event to all sinks in order. A failing sink never
// prevents delivery to the next one; its error is logged and joined into
// the returned error.
type Router struct {
	sinks    []Sink
	logger   *slog.Logger
	failures atomic.Int64
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len returns the number of attached sinks.
func (r *Router) Len() int { return len(r.sinks) }

// Failures returns how many single-sink deliveries failed so far.
func (r *Router) Failures() int64 { return r.failures.Load() }

func (r *Router) SendResult(ctx context.Context, ev route.Event) error {
	return r.each(func(s Sink) error { return s.SendResult(ctx, ev) },
		"sink: result delivery failed", "route", ev.Route.Path)
}

func (r *Router) SendSummary(ctx context.Context, sum route.Summary) error {
	return r.each(func(s Sink) error { return s.SendSummary(ctx, sum) },
		"sink: summary delivery failed", "run_id", sum.RunID)
}

func (r *Router) Close() error {
	return r.each(Sink.Close, "sink: close failed")
}

func (r *Router) each(fn func(Sink) error, msg string, attrs ...any) error {
	var errs []error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.failures.Add(1)
			name := fmt.Sprintf("%T", s)
			r.logger.Warn(msg, append(attrs, "sink", name, "error", err)...)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
