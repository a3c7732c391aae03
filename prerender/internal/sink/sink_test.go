package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/snapgen/prerender/route"
)

func testEvent() route.Event {
	return route.Event{
		RunID:   "run_1",
		Index:   0,
		Route:   route.Route{Path: "/blog/a", Kind: route.KindDetail},
		Outcome: route.Success,
	}
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.SendResult(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if err := s.SendSummary(context.Background(), route.Summary{RunID: "run_1", Total: 1, Succeeded: 1}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != "result" {
		t.Errorf("type = %q", env.Type)
	}
	if !strings.Contains(string(env.Data), `"/blog/a"`) {
		t.Errorf("data = %s", env.Data)
	}
	if !strings.Contains(lines[1], `"type":"summary"`) {
		t.Errorf("summary line = %s", lines[1])
	}
}

type errSink struct {
	err    error
	closed bool
}

func (e *errSink) SendResult(context.Context, route.Event) error    { return e.err }
func (e *errSink) SendSummary(context.Context, route.Summary) error { return e.err }
func (e *errSink) Close() error                                     { e.closed = true; return e.err }

func TestRouter_FanOutDespiteErrors(t *testing.T) {
	boom := errors.New("boom")
	var got []string
	cb := NewCallback(func(_ context.Context, ev route.Event) error {
		got = append(got, ev.Route.Path)
		return nil
	}, nil)
	bad := &errSink{err: boom}

	r := NewRouter(nil, bad, cb)
	if r.Len() != 2 {
		t.Fatalf("len = %d", r.Len())
	}
	if err := r.SendResult(context.Background(), testEvent()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(got) != 1 {
		t.Fatalf("callback not reached after failing sink: %v", got)
	}
	if err := r.Close(); !errors.Is(err, boom) {
		t.Fatalf("close err = %v", err)
	}
	if r.Failures() != 2 {
		t.Errorf("failures = %d, want 2", r.Failures())
	}
	if !bad.closed {
		t.Error("sink not closed")
	}
}

func TestCallback_NilHandlers(t *testing.T) {
	c := NewCallback(nil, nil)
	if err := c.SendResult(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if err := c.SendSummary(context.Background(), route.Summary{}); err != nil {
		t.Fatal(err)
	}
}

func TestWebhook_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if !bytes.Contains(body, []byte(`"type":"result"`)) {
			t.Errorf("body = %s", body)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.SendResult(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	err := w.SendSummary(context.Background(), route.Summary{RunID: "run_x"})
	if err == nil || !strings.Contains(err.Error(), "2 attempts") {
		t.Fatalf("err = %v", err)
	}
}

func TestWebhook_PermanentRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	err := w.SendResult(context.Background(), testEvent())
	if err == nil || !strings.Contains(err.Error(), "status 401") || !strings.Contains(err.Error(), "bad token") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWebhook_Headers(t *testing.T) {
	var deliveries []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deliveries = append(deliveries, r.Header.Get(HeaderDelivery))
		n := len(deliveries)
		mu.Unlock()
		if r.Header.Get(HeaderEvent) != "result" {
			t.Errorf("event header = %q", r.Header.Get(HeaderEvent))
		}
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ev := testEvent()
	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.SendResult(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	want := ev.RunID + "/" + strconv.Itoa(ev.Index)
	if len(deliveries) != 2 || deliveries[0] != want || deliveries[1] != want {
		t.Errorf("deliveries = %v, want 2x %q", deliveries, want)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := map[string]time.Duration{
		"":                              0,
		"2":                             2 * time.Second,
		"-1":                            0,
		"3600":                          maxRetryAfter,
		"Wed, 21 Oct 2015 07:28:00 GMT": 0,
	}
	for in, want := range tests {
		if got := retryAfter(in); got != want {
			t.Errorf("retryAfter(%q) = %s, want %s", in, got, want)
		}
	}
}

type fakePublisher struct {
	mu      sync.Mutex
	msgs    map[string][][]byte
	flushed int
	closed  bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgs == nil {
		f.msgs = make(map[string][][]byte)
	}
	f.msgs[subject] = append(f.msgs[subject], data)
	return nil
}

func (f *fakePublisher) FlushTimeout(time.Duration) error { f.flushed++; return nil }
func (f *fakePublisher) Close()                           { f.closed = true }

func TestNATS_Subjects(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATS(pub, "site.prerender", nil)

	if err := n.SendResult(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if err := n.SendSummary(context.Background(), route.Summary{RunID: "run_1"}); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}

	if len(pub.msgs["site.prerender.result"]) != 1 {
		t.Errorf("result messages = %d", len(pub.msgs["site.prerender.result"]))
	}
	if len(pub.msgs["site.prerender.summary"]) != 1 {
		t.Errorf("summary messages = %d", len(pub.msgs["site.prerender.summary"]))
	}
	var ev route.Event
	if err := json.Unmarshal(pub.msgs["site.prerender.result"][0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Route.Path != "/blog/a" {
		t.Errorf("event = %+v", ev)
	}
	if pub.flushed != 1 || !pub.closed {
		t.Errorf("flushed=%d closed=%v", pub.flushed, pub.closed)
	}
}

func TestNATS_DefaultPrefix(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATS(pub, "", nil)
	if err := n.SendResult(context.Background(), testEvent()); err != nil {
		t.Fatal(err)
	}
	if len(pub.msgs["snapgen.result"]) != 1 {
		t.Errorf("messages = %v", pub.msgs)
	}
}
