// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package metrics records request dispatch measurements.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/z5labs/kiln/pkg/health"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observation describes one completed dispatch. Route is the matched
// pattern, or "" when no route matched.
type Observation struct {
	Route    string
	Method   string
	Status   int
	Duration time.Duration
}

// Recorder is told when a dispatch begins and how it ended.
type Recorder interface {
	Begin(context.Context)
	Observe(context.Context, Observation)
}

// Noop discards every measurement.
type Noop struct{}

// Begin implements the [Recorder] interface.
func (Noop) Begin(context.Context) {}

// Observe implements the [Recorder] interface.
func (Noop) Observe(context.Context, Observation) {}

// UnmatchedRoute is the route label used when no route matched.
const UnmatchedRoute = "unmatched"

// Config for a [Prometheus] recorder.
type Config struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Buckets     []float64
	Registry    prometheus.Registerer
	Readiness   health.Metric
}

// Option configures a [Prometheus] recorder.
type Option func(*Config)

// Namespace sets the metric namespace. The default is "kiln".
func Namespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// Subsystem sets the metric subsystem.
func Subsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// ConstLabels adds constant labels to every metric.
func ConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// Buckets sets the request duration histogram buckets.
func Buckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// Registry sets where metrics are registered. The default is
// [prometheus.DefaultRegisterer].
func Registry(reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = reg
	}
}

// Readiness exports the given metric as a 0/1 gauge named ready.
func Readiness(m health.Metric) Option {
	return func(c *Config) {
		c.Readiness = m
	}
}

// Prometheus is a [Recorder] backed by Prometheus collectors.
type Prometheus struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewPrometheus registers the request collectors and returns a [Recorder]
// updating them. It panics if the collectors are already registered.
func NewPrometheus(opts ...Option) *Prometheus {
	cfg := Config{
		Namespace: "kiln",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)

	p := &Prometheus{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of dispatched HTTP requests",
			ConstLabels: cfg.ConstLabels,
		}, []string{"route", "method", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request dispatch duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"route", "method"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_in_flight",
			Help:        "Number of HTTP requests currently being dispatched",
			ConstLabels: cfg.ConstLabels,
		}),
	}

	if cfg.Readiness != nil {
		ready := cfg.Readiness
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "ready",
			Help:        "Whether the server has finished starting",
			ConstLabels: cfg.ConstLabels,
		}, func() float64 {
			if ready.Healthy(context.Background()) {
				return 1
			}
			return 0
		})
	}

	return p
}

// Begin implements the [Recorder] interface.
func (p *Prometheus) Begin(ctx context.Context) {
	p.inFlight.Inc()
}

// Observe implements the [Recorder] interface.
func (p *Prometheus) Observe(ctx context.Context, o Observation) {
	p.inFlight.Dec()

	route := o.Route
	if route == "" {
		route = UnmatchedRoute
	}
	p.requests.WithLabelValues(route, o.Method, strconv.Itoa(o.Status)).Inc()
	p.duration.WithLabelValues(route, o.Method).Observe(o.Duration.Seconds())
}
