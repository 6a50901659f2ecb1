// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fulfillment counts checkout outcomes by role (cashier or customer).
type Fulfillment struct {
	Calls         *prometheus.CounterVec
	AcceptedLines *prometheus.CounterVec
	DroppedLines  *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
}

// Search tracks product discovery cache effectiveness.
type Search struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// Registry bundles the collectors with the registry they are registered on.
type Registry struct {
	reg         *prometheus.Registry
	Fulfillment *Fulfillment
	Search      *Search
}

// New registers every collector on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f := &Fulfillment{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmahub",
			Subsystem: "fulfillment",
			Name:      "calls_total",
			Help:      "Fulfillment calls by role and outcome.",
		}, []string{"role", "outcome"}),
		AcceptedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmahub",
			Subsystem: "fulfillment",
			Name:      "accepted_lines_total",
			Help:      "Transaction lines written.",
		}, []string{"role"}),
		DroppedLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmahub",
			Subsystem: "fulfillment",
			Name:      "dropped_lines_total",
			Help:      "Requested lines dropped for insufficient or unavailable stock.",
		}, []string{"role"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pharmahub",
			Subsystem: "fulfillment",
			Name:      "duration_seconds",
			Help:      "Fulfillment call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
	}
	s := &Search{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmahub",
			Subsystem: "search",
			Name:      "cache_hits_total",
			Help:      "Product search pages served from cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmahub",
			Subsystem: "search",
			Name:      "cache_misses_total",
			Help:      "Product search pages loaded from the store.",
		}),
	}
	reg.MustRegister(f.Calls, f.AcceptedLines, f.DroppedLines, f.Duration, s.CacheHits, s.CacheMisses)

	return &Registry{reg: reg, Fulfillment: f, Search: s}
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
