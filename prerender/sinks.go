package prerender

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/snapgen/prerender/internal/ledger"
	"github.com/hazyhaar/snapgen/prerender/internal/sink"
)

// Sink receives per-route events and the run summary.
type Sink = sink.Sink

// NewStdoutSink writes JSON lines to w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink { return sink.NewStdout(w) }

// NewCallbackSink delivers events to in-process functions.
func NewCallbackSink(onResult sink.ResultFunc, onSummary sink.SummaryFunc) Sink {
	return sink.NewCallback(onResult, onSummary)
}

// SinksFromConfig builds the sinks configured in cfg.Sinks plus the ledger
// when cfg.Ledger.Path is set. The returned close function releases them
// all.
func SinksFromConfig(cfg *Config, stdout io.Writer, logger *slog.Logger) ([]Sink, func() error, error) {
	var sinks []Sink
	closeAll := func() error {
		var errs []error
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for i, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, sink.NewStdout(stdout))
		case "webhook":
			opts := []sink.WebhookOption{sink.WithWebhookLogger(logger)}
			if sc.Retries > 0 {
				opts = append(opts, sink.WithWebhookRetries(sc.Retries))
			}
			sinks = append(sinks, sink.NewWebhook(sc.URL, opts...))
		case "nats":
			n, err := sink.DialNATS(sc.URL, sc.SubjectPrefix, logger)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("prerender: sinks[%d]: %w", i, err)
			}
			sinks = append(sinks, n)
		default:
			closeAll()
			return nil, nil, fmt.Errorf("prerender: sinks[%d]: unknown type %q", i, sc.Type)
		}
	}

	if cfg.Ledger.Path != "" {
		l, err := ledger.Open(cfg.Ledger.Path, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, l)
	}
	return sinks, closeAll, nil
}
