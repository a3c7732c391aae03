package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsSufficient_RenderedPage(t *testing.T) {
	doc := []byte(`<!DOCTYPE html>
<html>
<head><title>Blog</title></head>
<body>
<app-root><app-blog-post><div id="rendered-markdown">
<h1>Fullstack Authentication Boilerplate</h1>
<p>Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur.</p>
</div></app-blog-post></app-root>
</body>
</html>`)
	if !IsSufficient(doc) {
		t.Error("expected sufficient for rendered page")
	}
}

func TestIsSufficient_AngularShell(t *testing.T) {
	doc := []byte(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>App</title><base href="/"></head>
<body>
<app-root></app-root>
<script src="runtime.js" type="module"></script>
<script src="main.js" type="module"></script>
</body>
</html>`)
	if IsSufficient(doc) {
		t.Error("expected insufficient for app shell")
	}
}

func TestIsSufficient_ScriptTextIgnored(t *testing.T) {
	script := ""
	for i := 0; i < 50; i++ {
		script += "var someLongVariableName = 'some string literal';\n"
	}
	doc := []byte("<html><head><script>" + script + "</script></head><body><p>hi</p></body></html>")
	if IsSufficient(doc) {
		t.Error("script source must not count as text")
	}
}

func TestIsSufficient_TooShort(t *testing.T) {
	if IsSufficient([]byte(`<html><body>hi</body></html>`)) {
		t.Error("expected insufficient for very short content")
	}
}

func TestTextMarkupRatio(t *testing.T) {
	text, markup := textMarkupRatio([]byte(`<div>Hello World</div>`))
	if text != len("HelloWorld") {
		t.Errorf("text = %d, want %d", text, len("HelloWorld"))
	}
	if markup == 0 {
		t.Error("expected non-zero markup count")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-ua" {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("<html><body><app-root></app-root></body></html>"))
	}))
	defer srv.Close()

	p := New(WithUserAgent("test-ua"))
	res, err := p.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}
	if res.Sufficient {
		t.Error("shell reported as sufficient")
	}
	if len(res.HTMLHash) != 64 {
		t.Errorf("hash = %q", res.HTMLHash)
	}
}

func TestWaitReady_EventuallyReady(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := New(WithInterval(5 * time.Millisecond))
	if err := p.WaitReady(ctx, srv.URL+"/"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWaitReady_Deadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := New(WithInterval(5 * time.Millisecond))
	err := p.WaitReady(ctx, srv.URL+"/")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}
