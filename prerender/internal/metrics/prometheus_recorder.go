package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	routes        prom.Gauge
	routeDuration *prom.HistogramVec
	routeOutcomes *prom.CounterVec
	runDuration   prom.Gauge
	runExit       *prom.GaugeVec
	lastRun       prom.Gauge
}

// NewPrometheusRecorder constructs and registers the run metrics on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		routes: prom.NewGauge(prom.GaugeOpts{
			Namespace: "snapgen",
			Name:      "routes",
			Help:      "Routes resolved for the last run",
		}),
		routeDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "snapgen",
			Name:      "route_render_duration_seconds",
			Help:      "Duration of individual route renders",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
		routeOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "snapgen",
			Name:      "route_outcomes_total",
			Help:      "Route render outcomes by kind",
		}, []string{"kind", "outcome"}),
		runDuration: prom.NewGauge(prom.GaugeOpts{
			Namespace: "snapgen",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		runExit: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "snapgen",
			Name:      "run_exit_code",
			Help:      "Exit code of the last run",
		}, []string{"status"}),
		lastRun: prom.NewGauge(prom.GaugeOpts{
			Namespace: "snapgen",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	reg.MustRegister(pr.routes, pr.routeDuration, pr.routeOutcomes, pr.runDuration, pr.runExit, pr.lastRun)
	return pr
}

// Registry returns the registry the metrics live in.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) SetRoutes(n int) {
	if p == nil {
		return
	}
	p.routes.Set(float64(n))
}

func (p *PrometheusRecorder) ObserveRoute(kind route.Kind, outcome route.Outcome, d time.Duration) {
	if p == nil {
		return
	}
	p.routeDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	p.routeOutcomes.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveRun(d time.Duration, exitCode int) {
	if p == nil {
		return
	}
	status := "completed"
	if exitCode != 0 {
		status = "fatal"
	}
	p.runDuration.Set(d.Seconds())
	p.runExit.Reset()
	p.runExit.WithLabelValues(status).Set(float64(exitCode))
	p.lastRun.SetToCurrentTime()
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node-exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: mkdir: %w", err)
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
