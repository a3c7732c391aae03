package sink

import (
	"context"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// ResultFunc is called for each route event.
type ResultFunc func(ctx context.Context, ev route.Event) error

// SummaryFunc is called once per run.
type SummaryFunc func(ctx context.Context, sum route.Summary) error

// Callback delivers events via Go function calls, for embedding the
// pipeline in another program.
type Callback struct {
	onResult  ResultFunc
	onSummary SummaryFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onResult ResultFunc, onSummary SummaryFunc) *Callback {
	return &Callback{onResult: onResult, onSummary: onSummary}
}

func (c *Callback) SendResult(ctx context.Context, ev route.Event) error {
	if c.onResult != nil {
		return c.onResult(ctx, ev)
	}
	return nil
}

func (c *Callback) SendSummary(ctx context.Context, sum route.Summary) error {
	if c.onSummary != nil {
		return c.onSummary(ctx, sum)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
