// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package metrics exposes Prometheus collectors for mapper renders,
// statement executions, the compiled cache and reloads.
//
// Every method is safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes metric names unless configured otherwise.
const DefaultNamespace = "sqlmapper"

// Metrics holds the collectors of one mapper.
type Metrics struct {
	registry *prometheus.Registry

	rendersTotal    *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	executionsTotal *prometheus.CounterVec
	execDuration    *prometheus.HistogramVec
	cacheTotal      *prometheus.CounterVec
	reloadsTotal    *prometheus.CounterVec
	statements      prometheus.Gauge
}

// New creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func New(namespace string, registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		registry: registry,
		rendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "renders_total",
				Help:      "Total number of statement renders by category and outcome.",
			},
			[]string{"category", "outcome"},
		),
		renderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "render_duration_seconds",
				Help:      "Time spent rendering statements.",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
			[]string{"category"},
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of statement executions by category and outcome.",
			},
			[]string{"category", "outcome"},
		),
		execDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Time spent executing statements, rendering included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_operations_total",
				Help:      "Compiled mapper cache lookups and write failures by result.",
			},
			[]string{"result"},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of mapper reloads by outcome.",
			},
			[]string{"outcome"},
		),
		statements: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "statements",
				Help:      "Number of registered statements.",
			},
		),
	}
	registry.MustRegister(
		m.rendersTotal,
		m.renderDuration,
		m.executionsTotal,
		m.execDuration,
		m.cacheTotal,
		m.reloadsTotal,
		m.statements,
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveRender records a render of a statement of category.
func (m *Metrics) ObserveRender(category string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.rendersTotal.WithLabelValues(category, outcome(err)).Inc()
	m.renderDuration.WithLabelValues(category).Observe(d.Seconds())
}

// ObserveExec records an execution of a statement of category.
func (m *Metrics) ObserveExec(category string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(category, outcome(err)).Inc()
	m.execDuration.WithLabelValues(category).Observe(d.Seconds())
}

// ObserveReload records a reload of the mapper documents.
func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	m.reloadsTotal.WithLabelValues(outcome(err)).Inc()
}

// SetStatements records the number of registered statements.
func (m *Metrics) SetStatements(n int) {
	if m == nil {
		return
	}
	m.statements.Set(float64(n))
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheTotal.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheTotal.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) CacheWriteFailed() {
	if m != nil {
		m.cacheTotal.WithLabelValues("write_failed").Inc()
	}
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
