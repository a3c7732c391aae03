// Package sink defines output backends for per-route render events and
// run summaries.
package sink

import (
	"context"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, NATS, in-process callback, ledger).
type Sink interface {
	SendResult(ctx context.Context, ev route.Event) error
	SendSummary(ctx context.Context, sum route.Summary) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
