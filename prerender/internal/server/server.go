// CLAUDE:SUMMARY Serves a pre-built SPA bundle over local HTTP with index.html fallback and traversal-safe path resolution.
// Package server serves a pre-built single-page application over local
// HTTP. Unknown paths fall back to the root index.html so client-side
// routing can bootstrap on any deep route.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/snapgen/horosafe"
)

// ErrBind is returned by Start when the listen address cannot be bound.
var ErrBind = errors.New("server: bind failed")

// Server is the content server for one build directory.
type Server struct {
	root      string
	rootIndex string
	logger    *slog.Logger
	router    chi.Router

	shell    []byte // root index.html as read at construction
	shellMod time.Time

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server rooted at root. The root index.html is read once
// here and kept as the fallback shell, so snapshots later written over it
// never leak into other routes' responses.
func New(root string, opts ...Option) *Server {
	s := &Server{
		root:   filepath.Clean(root),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.rootIndex = filepath.Join(s.root, "index.html")

	if info, err := os.Stat(s.rootIndex); err == nil && !info.IsDir() {
		if data, err := os.ReadFile(s.rootIndex); err == nil {
			s.shell = data
			s.shellMod = info.ModTime()
		}
	}
	if s.shell == nil {
		s.logger.Warn("server: no fallback document", "path", s.rootIndex)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/*", s.serve)
	r.Head("/*", s.serve)
	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds addr and serves in the background. It returns the base URL
// the browser should navigate against. A bind failure is returned
// immediately and wraps ErrBind.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return "", fmt.Errorf("server: already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrBind, addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srv = srv
	s.ln = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server: serve", "error", err)
		}
	}()

	base := BaseURL(addr, ln.Addr())
	s.logger.Info("server: listening", "addr", ln.Addr().String(), "root", s.root, "base_url", base)
	return base, nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx
// expires. Safe to call when the server never started.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	s.ln = nil
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("server: stopped")
	return nil
}

// BaseURL builds the navigation base URL for a bound listener. Wildcard
// hosts are replaced by the loopback address.
func BaseURL(addr string, bound net.Addr) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	port := ""
	if tcp, ok := bound.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcp.Port)
	} else if _, p, err := net.SplitHostPort(bound.String()); err == nil {
		port = p
	}
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	clean := horosafe.CleanURLPath(r.URL.Path)
	p, err := horosafe.SafePath(s.root, clean)
	if err != nil {
		s.logger.Warn("server: rejected path", "path", r.URL.Path, "error", err)
		s.fallback(w, r)
		return
	}

	info, err := os.Stat(p)
	if err == nil && info.IsDir() {
		p = filepath.Join(p, "index.html")
		info, err = os.Stat(p)
	}
	if err != nil || info.IsDir() || p == s.rootIndex {
		s.fallback(w, r)
		return
	}

	f, err := os.Open(p)
	if err != nil {
		s.fallback(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", ContentType(p))
	http.ServeContent(w, r, "", info.ModTime(), f)
}

// fallback serves the application shell with 200, or 404 when the build
// has no root index.html.
func (s *Server) fallback(w http.ResponseWriter, r *http.Request) {
	if s.shell == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentTypes[".html"])
	http.ServeContent(w, r, "", s.shellMod, bytes.NewReader(s.shell))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
