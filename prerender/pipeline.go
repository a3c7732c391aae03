// CLAUDE:SUMMARY Snapshot run orchestrator: state machine, resource acquisition, sequential render loop, guaranteed teardown.
// Package prerender generates static HTML snapshots of a client-rendered
// single-page application. A Pipeline serves the build output (or targets
// an external server), drives headless Chrome through every resolved route
// one at a time, writes each rendered document as <route>/index.html and
// reports per-route outcomes to sinks.
//
// Usage:
//
//	cfg, err := prerender.LoadConfig("prerender.yaml", ".env")
//	p := prerender.New(cfg, logger, prerender.NewStdoutSink(nil))
//	sum := p.Run(ctx)
//	os.Exit(sum.ExitCode)
package prerender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/snapgen/idgen"
	"github.com/hazyhaar/snapgen/prerender/internal/browser"
	"github.com/hazyhaar/snapgen/prerender/internal/metrics"
	"github.com/hazyhaar/snapgen/prerender/internal/output"
	"github.com/hazyhaar/snapgen/prerender/internal/probe"
	"github.com/hazyhaar/snapgen/prerender/internal/render"
	"github.com/hazyhaar/snapgen/prerender/internal/server"
	"github.com/hazyhaar/snapgen/prerender/internal/sink"
	"github.com/hazyhaar/snapgen/prerender/route"
)

// Fatal error classes. Each aborts the run with exit code 1.
var (
	ErrBuildDirMissing = errors.New("prerender: build directory missing")
	ErrBrowserLaunch   = browser.ErrLaunch
	ErrServerBind      = server.ErrBind
	ErrNotReady        = probe.ErrNotReady
	ErrInterrupted     = errors.New("prerender: interrupted")
)

// teardownTimeout bounds the server shutdown.
const teardownTimeout = 10 * time.Second

// contentServer serves the build directory to the browser.
type contentServer interface {
	Start(ctx context.Context, addr string) (string, error)
	Stop(ctx context.Context) error
}

// browserRuntime is the headless browser of one run.
type browserRuntime interface {
	Start(ctx context.Context) error
	OpenPage(ctx context.Context) (render.Page, error)
	Close() error
}

type readinessProbe interface {
	WaitReady(ctx context.Context, url string) error
}

// rodBrowser adapts browser.Manager to browserRuntime.
type rodBrowser struct {
	*browser.Manager
}

func (b rodBrowser) OpenPage(ctx context.Context) (render.Page, error) {
	p, err := b.Manager.OpenPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Pipeline runs snapshot generations. A Pipeline may Run several times
// (watch mode); runs never overlap.
type Pipeline struct {
	cfg      *Config
	logger   *slog.Logger
	sinks    *sink.Router
	recorder metrics.Recorder
	prom     *metrics.PrometheusRecorder

	newServer  func(root string) contentServer
	newBrowser func() browserRuntime
	prober     readinessProbe
	onState    func(State)
}

// New creates a Pipeline. cfg must have been validated (LoadConfig does
// it); it is never modified.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		sinks:    sink.NewRouter(logger, sinks...),
		recorder: metrics.NoopRecorder{},
		prober:   probe.New(probe.WithLogger(logger)),
	}
	if cfg.Metrics.Textfile != "" {
		p.prom = metrics.NewPrometheusRecorder(nil)
		p.recorder = p.prom
	}
	p.newServer = func(root string) contentServer {
		return server.New(root, server.WithLogger(logger))
	}
	p.newBrowser = func() browserRuntime {
		return rodBrowser{browser.NewManager(browser.Config{
			Bin:              cfg.Browser.Bin,
			RemoteURL:        cfg.Browser.Remote,
			NoSandbox:        cfg.Browser.SandboxDisabled(),
			Stealth:          cfg.Browser.Stealth,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			RecycleAfter:     cfg.Browser.RecycleAfter,
			IdleWindow:       cfg.Browser.IdleWindow,
			Logger:           logger,
		})}
	}
	return p
}

// run is the mutable state of one Run.
type run struct {
	p       *Pipeline
	log     *slog.Logger
	sum     route.Summary
	routes  []route.Route
	engine  *render.Engine
	baseURL string
	written []string

	sinkFailures int64 // router failures before this run

	srv           contentServer
	br            browserRuntime
	serverStopped bool
	browserClosed bool
}

// Run executes one generation and returns its summary; sum.ExitCode is
// the process exit status. Teardown (browser, then server) happens exactly
// once on every path, panics in the render loop included.
func (p *Pipeline) Run(ctx context.Context) route.Summary {
	id := idgen.RunID()
	r := &run{
		p:   p,
		log: p.logger.With("run_id", id),
		sum: route.Summary{RunID: id, Started: time.Now()},

		sinkFailures: p.sinks.Failures(),
	}
	r.execute(ctx)
	return r.sum
}

func (r *run) execute(ctx context.Context) {
	defer r.finish()
	defer func() {
		if v := recover(); v != nil {
			r.fatal(fmt.Errorf("prerender: panic: %v", v))
		}
	}()

	r.state(StateInit)
	if err := r.prepare(); err != nil {
		r.fatal(err)
		return
	}

	r.state(StateServerStarting)
	if err := r.startTransport(ctx); err != nil {
		r.fatal(err)
		return
	}
	r.state(StateServerReady)

	r.state(StateBrowserLaunching)
	if err := r.br.Start(ctx); err != nil {
		r.fatal(err)
		return
	}
	r.state(StateBrowserReady)

	r.state(StateRendering)
	if err := r.renderAll(ctx); err != nil {
		r.fatal(err)
		return
	}

	if err := r.writeSitemap(); err != nil {
		r.log.Warn("prerender: sitemap", "error", err)
	}
	r.state(StateCompleted)
}

// prepare validates everything that can fail before a resource exists.
func (r *run) prepare() error {
	cfg := r.p.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Transport.Mode == TransportStatic {
		info, err := os.Stat(cfg.App.BuildDir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s", ErrBuildDirMissing, cfg.App.BuildDir)
		}
	}

	routes, err := ResolveRoutes(cfg, r.log)
	if err != nil {
		return err
	}
	r.routes = routes
	r.sum.Total = len(routes)
	r.p.recorder.SetRoutes(len(routes))

	opener := render.OpenerFunc(func(ctx context.Context) (render.Page, error) {
		return r.br.OpenPage(ctx)
	})
	r.engine, err = render.New(opener, render.Config{
		Navigation:   cfg.Render.NavigationTimeout,
		Readiness:    cfg.Render.ReadinessTimeout,
		Extract:      cfg.Render.ExtractTimeout,
		PollInterval: cfg.Render.PollInterval,
		Predicates:   cfg.Render.Predicates,
	}, r.log)
	if err != nil {
		return err
	}
	// Built before the transport starts so teardown always sees it.
	r.br = r.p.newBrowser()

	r.log.Info("prerender: routes resolved", "count", len(routes), "transport", cfg.Transport.Mode)
	return nil
}

func (r *run) startTransport(ctx context.Context) error {
	cfg := r.p.cfg

	if cfg.Transport.Mode == TransportExternal {
		r.baseURL = cfg.Transport.BaseURL
	} else {
		r.srv = r.p.newServer(cfg.App.BuildDir)
		base, err := r.srv.Start(ctx, cfg.Addr())
		if err != nil {
			return err
		}
		r.baseURL = base
	}

	if cfg.Server.Warmup > 0 {
		r.log.Debug("prerender: warmup", "delay", cfg.Server.Warmup)
		select {
		case <-time.After(cfg.Server.Warmup):
		case <-ctx.Done():
			return fmt.Errorf("%w during warmup: %v", ErrInterrupted, ctx.Err())
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, cfg.Server.ProbeTimeout)
	defer cancel()
	return r.p.prober.WaitReady(probeCtx, render.URL(r.baseURL, "/"))
}

func (r *run) renderAll(ctx context.Context) error {
	writer := output.NewWriter(r.p.cfg.OutputRoot())

	for i, rt := range r.routes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w after %d/%d routes: %v", ErrInterrupted, i, len(r.routes), err)
		}

		res := r.engine.Render(ctx, rt, r.baseURL)
		ev := route.Event{
			RunID:   r.sum.RunID,
			Index:   i,
			Route:   rt,
			Outcome: res.Outcome,
			Detail:  res.Detail,
		}

		if res.Outcome == route.Success {
			path, err := writer.Write(rt, res.HTML)
			if err != nil {
				ev.Outcome = route.Failed
				ev.Detail = err.Error()
			} else {
				r.written = append(r.written, rt.Path)
				ev.OutputPath = path
				ev.HTMLHash = route.HashHTML([]byte(res.HTML))
				ev.Bytes = len(res.HTML)
			}
		}
		ev.Duration = res.Duration
		ev.Timestamp = time.Now().UnixMilli()

		r.sum.Count(ev.Outcome)
		r.p.recorder.ObserveRoute(rt.Kind, ev.Outcome, ev.Duration)
		r.logEvent(ev)
		r.p.sinks.SendResult(ctx, ev)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return nil
}

func (r *run) logEvent(ev route.Event) {
	attrs := []any{"route", ev.Route.Path, "kind", ev.Route.Kind, "duration", ev.Duration}
	switch ev.Outcome {
	case route.Success:
		r.log.Info("prerender: saved", append(attrs, "path", ev.OutputPath, "bytes", ev.Bytes)...)
	case route.Skipped:
		r.log.Warn("prerender: skipped", append(attrs, "detail", ev.Detail)...)
	default:
		r.log.Error("prerender: failed", append(attrs, "detail", ev.Detail)...)
	}
}

func (r *run) writeSitemap() error {
	base := r.p.cfg.Sitemap.BaseURL
	if base == "" || len(r.written) == 0 {
		return nil
	}
	path, err := output.WriteSitemap(r.p.cfg.OutputRoot(), base, r.written)
	if err != nil {
		return err
	}
	r.log.Info("prerender: sitemap written", "path", path, "urls", len(r.written))
	return nil
}

func (r *run) fatal(err error) {
	if r.sum.Fatal == "" {
		r.sum.Fatal = err.Error()
	}
	r.log.Error("prerender: fatal", "error", err)
	r.state(StateFatalFailure)
}

// teardown closes the browser then stops the server, each at most once.
func (r *run) teardown() {
	if r.br != nil && !r.browserClosed {
		r.browserClosed = true
		if err := r.br.Close(); err != nil {
			r.log.Warn("prerender: browser close", "error", err)
		}
	}
	if r.srv != nil && !r.serverStopped {
		r.serverStopped = true
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := r.srv.Stop(ctx); err != nil {
			r.log.Warn("prerender: server stop", "error", err)
		}
	}
}

func (r *run) finish() {
	r.state(StateTeardown)
	func() {
		defer func() {
			if v := recover(); v != nil {
				r.log.Error("prerender: panic during teardown", "panic", v)
			}
		}()
		r.teardown()
	}()

	r.sum.Finished = time.Now()
	if r.sum.Fatal != "" {
		r.sum.ExitCode = 1
	}
	elapsed := r.sum.Finished.Sub(r.sum.Started)

	r.log.Info("prerender: done",
		"total", r.sum.Total, "succeeded", r.sum.Succeeded,
		"skipped", r.sum.Skipped, "failed", r.sum.Failed,
		"fatal", r.sum.Fatal, "exit_code", r.sum.ExitCode, "duration", elapsed)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	r.p.sinks.SendSummary(ctx, r.sum)
	if n := r.p.sinks.Failures() - r.sinkFailures; n > 0 {
		r.log.Warn("prerender: sink deliveries failed", "count", n)
	}

	r.p.recorder.ObserveRun(elapsed, r.sum.ExitCode)
	if r.p.prom != nil {
		if err := r.p.prom.WriteTextfile(r.p.cfg.Metrics.Textfile); err != nil {
			r.log.Warn("prerender: metrics textfile", "error", err)
		}
	}
	r.state(StateExit)
}

func (r *run) state(s State) {
	r.log.Info("prerender: state", "state", s.String())
	if r.p.onState != nil {
		r.p.onState(s)
	}
}
