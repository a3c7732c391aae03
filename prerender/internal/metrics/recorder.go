// Package metrics exposes render run metrics through Prometheus. A run is a
// batch job, so the registry is written to a node-exporter textfile at the
// end of the run instead of being scraped.
package metrics

import (
	"time"

	"github.com/hazyhaar/snapgen/prerender/route"
)

// Recorder defines the observability hooks of a run. NoopRecorder is the
// default when metrics are not configured.
type Recorder interface {
	SetRoutes(n int)
	ObserveRoute(kind route.Kind, outcome route.Outcome, d time.Duration)
	ObserveRun(d time.Duration, exitCode int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) SetRoutes(int)                                         {}
func (NoopRecorder) ObserveRoute(route.Kind, route.Outcome, time.Duration) {}
func (NoopRecorder) ObserveRun(time.Duration, int)                         {}
