// Package probe checks that the transport serving the application answers
// before the browser is pointed at it, and classifies fetched documents as
// rendered content or bare SPA shells.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/snapgen/horosafe"
	"github.com/hazyhaar/snapgen/prerender/route"
)

// ErrNotReady is returned by WaitReady when the deadline passes without a
// successful response.
var ErrNotReady = errors.New("probe: transport not ready")

// Result is the outcome of one GET.
type Result struct {
	StatusCode int
	Body       []byte
	HTMLHash   string
	Sufficient bool // document carries rendered text, not only an app shell
}

// Prober performs HTTP GETs against the transport.
type Prober struct {
	client   *http.Client
	ua       string
	interval time.Duration
	logger   *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Prober) { p.ua = ua }
}

// WithInterval sets the delay between WaitReady attempts.
func WithInterval(d time.Duration) Option {
	return func(p *Prober) { p.interval = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) { p.logger = l }
}

// New creates a Prober with sensible defaults.
func New(opts ...Option) *Prober {
	p := &Prober{
		client:   &http.Client{Timeout: 5 * time.Second},
		ua:       "snapgen-probe/1.0",
		interval: 200 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Fetch GETs url and returns status, body (capped at 10 MiB) and the shell
// heuristic verdict.
func (p *Prober) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: new request: %w", err)
	}
	req.Header.Set("User-Agent", p.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: do: %w", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxDocumentBody)
	if err != nil {
		return nil, fmt.Errorf("probe: read body: %w", err)
	}

	res := &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		HTMLHash:   route.HashHTML(body),
		Sufficient: IsSufficient(body),
	}
	p.logger.Debug("probe: fetched", "url", url, "status", resp.StatusCode, "size", len(body), "sufficient", res.Sufficient)
	return res, nil
}

// WaitReady polls url until it answers with a 2xx status or ctx ends. The
// caller bounds the wait through ctx.
func (p *Prober) WaitReady(ctx context.Context, url string) error {
	attempts := 0
	var lastErr error
	for {
		attempts++
		res, err := p.Fetch(ctx, url)
		switch {
		case err != nil:
			lastErr = err
		case res.StatusCode >= 200 && res.StatusCode < 300:
			p.logger.Info("probe: transport ready", "url", url, "attempts", attempts)
			return nil
		default:
			lastErr = fmt.Errorf("status %d", res.StatusCode)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrNotReady, url, attempts, lastErr)
		case <-time.After(p.interval):
		}
	}
}
