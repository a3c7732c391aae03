// Package render turns one route into a route.Result: open an isolated
// page, navigate, poll the readiness predicate of the route kind, serialise
// the DOM, release the page. Per-route errors never escape Render.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// Defaults for Config.
const (
	DefaultNavigation   = 60 * time.Second
	DefaultReadiness    = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
	DefaultExtract      = 30 * time.Second
)

// ErrTimeoutOrder is returned when the readiness timeout is not strictly
// below the navigation timeout.
var ErrTimeoutOrder = errors.New("render: readiness timeout must be lower than navigation timeout")

// Page is an isolated browser page. Close must release every resource the
// page holds, including its browser context.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Ready(ctx context.Context, pred route.Predicate) (bool, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// PageOpener hands out fresh isolated pages.
type PageOpener interface {
	OpenPage(ctx context.Context) (Page, error)
}

// OpenerFunc adapts a function to PageOpener.
type OpenerFunc func(ctx context.Context) (Page, error)

// OpenPage calls f(ctx).
func (f OpenerFunc) OpenPage(ctx context.Context) (Page, error) { return f(ctx) }

// Config holds the engine timeouts and the predicate of every route kind.
// Extract bounds opening the page and serialising the DOM, each on its own.
type Config struct {
	Navigation   time.Duration
	Readiness    time.Duration
	Extract      time.Duration
	PollInterval time.Duration
	Predicates   route.Predicates
}

func (c *Config) defaults() {
	if c.Navigation <= 0 {
		c.Navigation = DefaultNavigation
	}
	if c.Readiness <= 0 {
		c.Readiness = DefaultReadiness
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Extract <= 0 {
		c.Extract = DefaultExtract
	}
}

// Validate checks timeouts and predicates.
func (c *Config) Validate() error {
	if c.Readiness >= c.Navigation {
		return fmt.Errorf("%w (readiness=%s navigation=%s)", ErrTimeoutOrder, c.Readiness, c.Navigation)
	}
	if err := c.Predicates.Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

// Engine renders routes one at a time.
type Engine struct {
	cfg    Config
	opener PageOpener
	logger *slog.Logger
}

// New validates cfg and builds an Engine.
func New(opener PageOpener, cfg Config, logger *slog.Logger) (*Engine, error) {
	if opener == nil {
		return nil, fmt.Errorf("render: nil page opener")
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, opener: opener, logger: logger}, nil
}

// URL joins baseURL and a route path.
func URL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// Render produces exactly one Result for r. Every step runs under its own
// deadline. Navigation and readiness timeouts map to Skipped; every other
// error (open and extract timeouts and panics included) to Failed. The page
// is closed on every path.
func (e *Engine) Render(ctx context.Context, r route.Route, baseURL string) (res route.Result) {
	start := time.Now()
	log := e.logger.With("route", r.Path)

	defer func() {
		if p := recover(); p != nil {
			log.Error("render: panic", "panic", p)
			res = route.Fail(r, fmt.Sprintf("panic: %v", p), time.Since(start))
		}
	}()

	pred, ok := e.cfg.Predicates[r.Kind]
	if !ok {
		return route.Fail(r, fmt.Sprintf("unknown route kind %q", r.Kind), time.Since(start))
	}

	openCtx, cancel := context.WithTimeout(ctx, e.cfg.Extract)
	page, err := e.opener.OpenPage(openCtx)
	openTimedOut := errors.Is(openCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if ctx.Err() == nil && openTimedOut {
			return route.Fail(r, fmt.Sprintf("open page timeout after %s", e.cfg.Extract), time.Since(start))
		}
		return route.Fail(r, fmt.Sprintf("open page: %v", err), time.Since(start))
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("render: close page", "error", err)
		}
	}()

	url := URL(baseURL, r.Path)
	log.Debug("render: navigate", "url", url)

	navCtx, cancel := context.WithTimeout(ctx, e.cfg.Navigation)
	err = page.Navigate(navCtx, url)
	navTimedOut := errors.Is(navCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if ctx.Err() == nil && (navTimedOut || errors.Is(err, context.DeadlineExceeded)) {
			return route.Skip(r, fmt.Sprintf("navigation timeout after %s", e.cfg.Navigation), time.Since(start))
		}
		return route.Fail(r, fmt.Sprintf("navigation: %v", err), time.Since(start))
	}

	ready, lastErr := e.waitReady(ctx, page, pred)
	if ctx.Err() != nil {
		return route.Fail(r, fmt.Sprintf("canceled: %v", ctx.Err()), time.Since(start))
	}
	if !ready {
		detail := fmt.Sprintf("readiness timeout after %s: selector %q", e.cfg.Readiness, pred.Selector)
		if pred.NonEmpty {
			detail += " (non-empty)"
		}
		if lastErr != nil {
			detail += fmt.Sprintf(": last error: %v", lastErr)
		}
		return route.Skip(r, detail, time.Since(start))
	}

	extractCtx, cancel := context.WithTimeout(ctx, e.cfg.Extract)
	html, err := page.HTML(extractCtx)
	extractTimedOut := errors.Is(extractCtx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if ctx.Err() == nil && extractTimedOut {
			return route.Fail(r, fmt.Sprintf("extract timeout after %s", e.cfg.Extract), time.Since(start))
		}
		return route.Fail(r, fmt.Sprintf("extract DOM: %v", err), time.Since(start))
	}

	d := time.Since(start)
	log.Debug("render: captured", "bytes", len(html), "duration", d)
	return route.Succeeded(r, html, d)
}

// waitReady polls the predicate until it holds or the readiness timeout
// expires. Evaluation errors count as "not ready yet"; the last one is
// returned for diagnostics.
func (e *Engine) waitReady(ctx context.Context, page Page, pred route.Predicate) (bool, error) {
	readyCtx, cancel := context.WithTimeout(ctx, e.cfg.Readiness)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := page.Ready(readyCtx, pred)
		switch {
		case err != nil:
			if readyCtx.Err() == nil {
				lastErr = err
				e.logger.Debug("render: readiness eval", "selector", pred.Selector, "error", err)
			}
		case ok:
			return true, nil
		}

		select {
		case <-readyCtx.Done():
			return false, lastErr
		case <-ticker.C:
		}
	}
}
