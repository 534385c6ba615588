// Package metrics provides Prometheus metrics collection for the scaffold framework.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics published by the framework.
// All helper methods are nil-safe so components can run without metrics.
type Collector struct {
	// Route metrics
	Routes         *prometheus.GaugeVec
	RouteConflicts prometheus.Gauge

	// Service metrics
	Services prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Scheduler metrics
	SchedulerRuns  *prometheus.CounterVec
	SchedulerSkips *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a collector with all metrics registered on a private registry,
// so multiple collectors can coexist within one process (and one test run).
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		Routes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scaffold",
				Name:      "routes",
				Help:      "Registered routes by method and security mode",
			},
			[]string{"method", "secure"},
		),
		RouteConflicts: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scaffold",
				Name:      "route_conflicts",
				Help:      "Number of route conflicts detected at load time",
			},
		),
		Services: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scaffold",
				Name:      "services",
				Help:      "Number of registered services",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scaffold",
				Name:      "auth_failures_total",
				Help:      "Total number of authentication failures",
			},
			[]string{"reason"},
		),
		SchedulerRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scaffold",
				Name:      "scheduler_runs_total",
				Help:      "Total number of scheduled job runs",
			},
			[]string{"job", "status"},
		),
		SchedulerSkips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scaffold",
				Name:      "scheduler_skips_total",
				Help:      "Total number of skipped job fires",
			},
			[]string{"job", "reason"},
		),
		registry: registry,
	}
}

// Handler returns an http.Handler exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetRoutes records the number of routes for a (method, secure mode) pair.
func (c *Collector) SetRoutes(method, secure string, count float64) {
	if c == nil {
		return
	}
	c.Routes.WithLabelValues(method, secure).Set(count)
}

// SetConflicts records the number of route conflicts detected.
func (c *Collector) SetConflicts(count float64) {
	if c == nil {
		return
	}
	c.RouteConflicts.Set(count)
}

// SetServices records the number of registered services.
func (c *Collector) SetServices(count float64) {
	if c == nil {
		return
	}
	c.Services.Set(count)
}

// AuthFailure counts an authentication failure by reason.
func (c *Collector) AuthFailure(reason string) {
	if c == nil {
		return
	}
	c.AuthFailures.WithLabelValues(reason).Inc()
}

// JobRun counts a completed job run with its outcome status.
func (c *Collector) JobRun(job, status string) {
	if c == nil {
		return
	}
	c.SchedulerRuns.WithLabelValues(job, status).Inc()
}

// JobSkip counts a skipped job fire with its reason.
func (c *Collector) JobSkip(job, reason string) {
	if c == nil {
		return
	}
	c.SchedulerSkips.WithLabelValues(job, reason).Inc()
}
