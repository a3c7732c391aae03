// Package watch runs an action when watched files change: fsnotify events,
// filtered to the watched paths, debounced, then one action at a time.
//
// Typical usage:
//
//	w := watch.New([]string{"dist/app/browser/blog/list.json"}, watch.Options{Debounce: time.Second})
//	err := w.OnChange(ctx, func(ctx context.Context) error { return rerender(ctx) })
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Options tunes the watcher behaviour.
type Options struct {
	// Debounce is the quiet period after a change before the action fires.
	// Further changes during the window reset the timer. Default: 500ms.
	Debounce time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher fires an action when one of its files changes.
type Watcher struct {
	paths []string
	opts  Options

	changes atomic.Int64
	ignored atomic.Int64
	errors  atomic.Int64
	runs    atomic.Int64
	runNs   atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	ChangesDetected int64         `json:"changes_detected"`
	Ignored         int64         `json:"ignored"`
	Errors          int64         `json:"errors"`
	Runs            int64         `json:"runs"`
	AvgRunTime      time.Duration `json:"avg_run_time"`
}

// New creates a Watcher over paths. Call OnChange to start the loop.
func New(paths []string, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{paths: paths, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		ChangesDetected: w.changes.Load(),
		Ignored:         w.ignored.Load(),
		Errors:          w.errors.Load(),
		Runs:            w.runs.Load(),
	}
	if s.Runs > 0 {
		s.AvgRunTime = time.Duration(w.runNs.Load() / s.Runs)
	}
	return s
}

// OnChange blocks until ctx is cancelled. Parent directories are watched so
// that files replaced by rename are still seen. Events that arrive while the
// action runs are dropped: they are the action's own writes or will be
// covered by its result.
func (w *Watcher) OnChange(ctx context.Context, action func(context.Context) error) error {
	log := w.opts.Logger

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: fsnotify: %w", err)
	}
	defer fw.Close()

	targets := make(map[string]bool, len(w.paths))
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch: resolve %s: %w", p, err)
		}
		targets[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch: add %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	log.Info("watch: started", "paths", w.paths, "debounce", w.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped")
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(ev.Name)] || !relevant(ev.Op) {
				continue
			}
			w.changes.Add(1)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.opts.Debounce)
			debounceCh = debounceTimer.C
			log.Debug("watch: change detected, debouncing", "file", ev.Name, "op", ev.Op.String())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errors.Add(1)
			log.Warn("watch: fsnotify error", "error", err)

		case <-debounceCh:
			debounceCh = nil
			w.fire(ctx, log, action)
			w.drain(fw)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, log *slog.Logger, action func(context.Context) error) {
	log.Info("watch: running")
	start := time.Now()
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		log.Error("watch: run failed", "error", err)
		return
	}
	elapsed := time.Since(start)
	w.runs.Add(1)
	w.runNs.Add(int64(elapsed))
	log.Info("watch: run complete", "duration", elapsed)
}

// drain discards events queued while the action ran.
func (w *Watcher) drain(fw *fsnotify.Watcher) {
	for {
		select {
		case _, ok := <-fw.Events:
			if !ok {
				return
			}
			w.ignored.Add(1)
		default:
			return
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) || op.Has(fsnotify.Rename) || op.Has(fsnotify.Remove)
}
