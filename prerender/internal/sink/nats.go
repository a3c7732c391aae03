// CLAUDE:SUMMARY Publishes render events and run summaries as JSON on NATS subjects <prefix>.result and <prefix>.summary.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// Publisher is the subset of *nats.Conn used by the NATS sink.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATS publishes events on "<prefix>.result" and summaries on
// "<prefix>.summary".
type NATS struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

// DialNATS connects to url and returns a NATS sink publishing under prefix.
func DialNATS(url, prefix string, logger *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("snapgen"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", url, err)
	}
	return NewNATS(conn, prefix, logger), nil
}

// NewNATS wraps an established connection.
func NewNATS(pub Publisher, prefix string, logger *slog.Logger) *NATS {
	if prefix == "" {
		prefix = "snapgen"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{pub: pub, prefix: prefix, logger: logger}
}

func (n *NATS) SendResult(_ context.Context, ev route.Event) error {
	return n.publish(n.prefix+".result", ev)
}

// SendSummary publishes the summary and flushes so the run is delivered
// before the process exits.
func (n *NATS) SendSummary(ctx context.Context, sum route.Summary) error {
	if err := n.publish(n.prefix+".summary", sum); err != nil {
		return err
	}
	timeout := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := n.pub.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	return nil
}

func (n *NATS) Close() error {
	n.pub.Close()
	return nil
}

func (n *NATS) publish(subject string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("nats: marshal: %w", err)
	}
	if err := n.pub.Publish(subject, body); err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	n.logger.Debug("nats: published", "subject", subject, "size", len(body))
	return nil
}
