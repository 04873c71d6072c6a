// Package metrics exports interceptor activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kasava-AI/demokit-sub003/intercept"
)

const namespace = "demokit"

// DefaultBuckets are histogram buckets in seconds, sized for fixture
// delays rather than network calls.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Collector records interceptor outcomes. It implements
// intercept.Observer.
type Collector struct {
	served   *prometheus.CounterVec
	fallback *prometheus.CounterVec
	failed   *prometheus.CounterVec
	duration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

var _ intercept.Observer = (*Collector)(nil)

// New registers the demokit metrics with reg. A nil reg uses a fresh
// registry, which Handler then serves.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		served: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fixture",
			Name:      "served_total",
			Help:      "Calls answered from a fixture.",
		}, []string{"adapter"}),
		fallback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fixture",
			Name:      "fallback_total",
			Help:      "Calls passed to the real function, by reason.",
		}, []string{"adapter", "reason"}),
		failed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fixture",
			Name:      "errors_total",
			Help:      "Fixture handlers that returned an error.",
		}, []string{"adapter"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fixture",
			Name:      "duration_seconds",
			Help:      "Time spent serving a fixture, including delays.",
			Buckets:   DefaultBuckets,
		}, []string{"adapter"}),
		gatherer: reg,
	}
}

// Served implements intercept.Observer.
func (c *Collector) Served(adapter string, d time.Duration) {
	c.served.WithLabelValues(adapter).Inc()
	c.duration.WithLabelValues(adapter).Observe(d.Seconds())
}

// Fallback implements intercept.Observer.
func (c *Collector) Fallback(adapter string, reason intercept.Reason) {
	c.fallback.WithLabelValues(adapter, string(reason)).Inc()
}

// Failed implements intercept.Observer.
func (c *Collector) Failed(adapter string, d time.Duration) {
	c.failed.WithLabelValues(adapter).Inc()
	c.duration.WithLabelValues(adapter).Observe(d.Seconds())
}

// Handler serves the registry the collector was created with.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
