// Package telemetry exposes Prometheus metrics for the API: request
// counts and latencies per route, live socket clients and notification
// deliveries.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medconnect/medconnect/internal/platform/middleware"
	"github.com/medconnect/medconnect/internal/platform/notification"
)

const namespace = "medconnect"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

// New builds the metrics registry. Pass withRuntime to include the Go and
// process collectors; tests leave them out.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by event type and result.",
		}, []string{"type", "result"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.notifications)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Gauge registers a gauge read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Middleware records every request under its route template so that ids in
// paths do not create new series. Unmatched routes share one label.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = middleware.StatusOf(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// CountingPublisher counts deliveries through the wrapped publisher.
type CountingPublisher struct {
	next    notification.Publisher
	counter *prometheus.CounterVec
}

func (m *Metrics) Publisher(next notification.Publisher) *CountingPublisher {
	return &CountingPublisher{next: next, counter: m.notifications}
}

func (p *CountingPublisher) Publish(ctx context.Context, ev notification.Event) error {
	err := p.next.Publish(ctx, ev)
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.counter.WithLabelValues(ev.Type, result).Inc()
	return err
}
