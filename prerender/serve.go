package prerender

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hazyhaar/snapgen/prerender/internal/server"
	"github.com/hazyhaar/snapgen/prerender/internal/watch"
)

// Serve runs the content server over root (the output root when empty)
// until ctx ends, for previewing snapshots as a static host would serve
// them.
func Serve(ctx context.Context, cfg *Config, root string, logger *slog.Logger) error {
	if root == "" {
		root = cfg.OutputRoot()
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrBuildDirMissing, root)
	}

	srv := server.New(root, server.WithLogger(logger))
	base, err := srv.Start(ctx, cfg.Addr())
	if err != nil {
		return err
	}
	logger.Info("prerender: serving", "root", root, "url", base)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	return srv.Stop(stopCtx)
}

// WatchPaths returns the files whose changes trigger a new run: the
// configured watch paths, or the manifest.
func WatchPaths(cfg *Config) []string {
	if len(cfg.Watch.Paths) > 0 {
		return cfg.Watch.Paths
	}
	return []string{cfg.ManifestPath()}
}

// Watch runs p once, then again after every debounced change of the watch
// paths and, when watch.schedule is set, on that schedule, until ctx ends.
// Runs never overlap. Failed runs are logged; the loop keeps going.
func Watch(ctx context.Context, p *Pipeline) error {
	var mu sync.Mutex
	runOnce := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
		sum := p.Run(ctx)
		if sum.ExitCode != 0 {
			return fmt.Errorf("prerender: run %s: %s", sum.RunID, sum.Fatal)
		}
		return nil
	}

	if err := runOnce(ctx); err != nil {
		p.logger.Error("prerender: initial run failed", "error", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var schedErr chan error
	if spec := p.cfg.Watch.Schedule; spec != "" {
		sched, err := watch.NewScheduler(spec, p.logger)
		if err != nil {
			return err
		}
		schedErr = make(chan error, 1)
		go func() {
			err := sched.Run(ctx, runOnce)
			if err != nil {
				cancel()
			}
			schedErr <- err
		}()
	}

	w := watch.New(WatchPaths(p.cfg), watch.Options{Debounce: p.cfg.Watch.Debounce, Logger: p.logger})
	start := time.Now()
	err := w.OnChange(ctx, runOnce)
	cancel()
	if schedErr != nil {
		if serr := <-schedErr; serr != nil && err == nil {
			err = serr
		}
	}

	s := w.Stats()
	p.logger.Info("prerender: watch stopped", "uptime", time.Since(start), "runs", s.Runs, "changes", s.ChangesDetected)
	return err
}
