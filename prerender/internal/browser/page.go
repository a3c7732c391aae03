package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// readyJS evaluates a readiness predicate inside the page.
const readyJS = `(selector, nonEmpty) => {
	const el = document.querySelector(selector);
	if (!el) return false;
	if (!nonEmpty) return true;
	const text = el.innerText || el.textContent || '';
	return text.trim().length > 0;
}`

// contentJS serialises the live document, doctype included.
const contentJS = `() => {
	const dt = document.doctype ? new XMLSerializer().serializeToString(document.doctype) : '';
	return dt + document.documentElement.outerHTML;
}`

// Page is one isolated tab: a Rod page inside its own incognito context.
type Page struct {
	page      *rod.Page
	incognito *rod.Browser
	router    *rod.HijackRouter
	blocked   atomic.Int64
	idle      time.Duration
	logger    *slog.Logger
	closed    bool
}

// Navigate loads url and returns once the load event fired and the network
// stayed quiet for the idle window. When ctx expires first, ctx.Err() is
// returned.
func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)

	waitIdle := pg.WaitRequestIdle(p.idle, nil, nil, nil)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load %s: %w", url, err)
	}
	waitIdle()
	return ctx.Err()
}

// Ready evaluates the readiness predicate once.
func (p *Page) Ready(ctx context.Context, pred route.Predicate) (bool, error) {
	res, err := p.page.Context(ctx).Eval(readyJS, pred.Selector, pred.NonEmpty)
	if err != nil {
		return false, fmt.Errorf("browser: eval readiness: %w", err)
	}
	return res.Value.Bool(), nil
}

// HTML serialises the document after script execution.
func (p *Page) HTML(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(contentJS)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close closes the tab and disposes its incognito context. Idempotent.
func (p *Page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if p.router != nil {
		if err := p.router.Stop(); err != nil {
			p.logger.Debug("browser: stop hijack router", "error", err)
		}
		p.logger.Debug("browser: requests blocked", "count", p.blocked.Load())
	}
	var firstErr error
	if err := p.page.Close(); err != nil {
		firstErr = fmt.Errorf("browser: close page: %w", err)
	}
	if err := p.incognito.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("browser: dispose context: %w", err)
	}
	return firstErr
}
