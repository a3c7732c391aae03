package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// Webhook headers. Receivers can dedupe on the delivery ID: it is the same
// across retries of one event.
const (
	HeaderRun      = "X-Prerender-Run"
	HeaderEvent    = "X-Prerender-Event"
	HeaderDelivery = "X-Prerender-Delivery"
)

// maxRetryAfter caps a receiver's Retry-After so a misbehaving endpoint
// cannot park the render loop.
const maxRetryAfter = 30 * time.Second

// errPermanent marks responses a retry cannot fix (4xx other than 408/429).
var errPermanent = errors.New("webhook: rejected")

// Webhook POSTs each event as JSON. 5xx, 408, 429 and transport errors are
// retried with exponential backoff (Retry-After honoured); other 4xx fail
// at once.
type Webhook struct {
	url        string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the number of retries after the first attempt.
// Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay; it doubles on every
// attempt. Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink posting to url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Webhook) SendResult(ctx context.Context, ev route.Event) error {
	return w.deliver(ctx, ev.RunID, "result", ev.RunID+"/"+strconv.Itoa(ev.Index), ev)
}

func (w *Webhook) SendSummary(ctx context.Context, sum route.Summary) error {
	return w.deliver(ctx, sum.RunID, "summary", sum.RunID+"/summary", sum)
}

func (w *Webhook) Close() error { return nil }

func (w *Webhook) deliver(ctx context.Context, runID, typ, delivery string, data any) error {
	body, err := json.Marshal(envelope{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", typ, err)
	}

	delay := w.backoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		wait, err := w.post(ctx, runID, typ, delivery, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, errPermanent) {
			return fmt.Errorf("webhook: %s %s: %w", typ, delivery, err)
		}
		lastErr = err
		if attempt > w.maxRetries {
			break
		}
		if wait <= 0 {
			wait = delay
			delay *= 2
		}
		w.logger.Warn("webhook: retrying", "delivery", delivery, "attempt", attempt, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("webhook: %s %s: %w", typ, delivery, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("webhook: %s %s: %d attempts: %w", typ, delivery, w.maxRetries+1, lastErr)
}

// post makes one attempt. The returned duration is the receiver's
// Retry-After, zero when absent.
func (w *Webhook) post(ctx context.Context, runID, typ, delivery string, body []byte) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderRun, runID)
	req.Header.Set(HeaderEvent, typ)
	req.Header.Set(HeaderDelivery, delivery)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return 0, nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("status %d: %s", code, bytes.TrimSpace(msg))
	default:
		return 0, fmt.Errorf("%w: status %d: %s", errPermanent, code, bytes.TrimSpace(msg))
	}
}

// retryAfter parses a delay-seconds Retry-After value. HTTP dates are
// ignored.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}
