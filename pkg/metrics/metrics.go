// Package metrics owns the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery results
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultGone    = "gone"
	ResultSkipped = "skipped"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	deliveriesTotal     *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	scanDuration        prometheus.Histogram
	storeBackend        prometheus.Gauge
	reg                 prometheus.Registerer
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminder_deliveries_total",
				Help: "Reminder alert delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminder_transitions_total",
				Help: "Reminder state transitions performed by the monitor",
			},
			[]string{"to"},
		),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_monitor_scan_duration_seconds",
			Help:    "Duration of one monitor scan including dispatch",
			Buckets: prometheus.DefBuckets,
		}),
		storeBackend: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reminder_store_durable",
			Help: "1 while the durable reminder store serves requests, 0 on fallback",
		}),
		reg: reg,
	}
	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesTotal,
		m.transitionsTotal,
		m.scanDuration,
		m.storeBackend,
	)
	return m
}

// Middleware records request count and latency
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}

		labels := prometheus.Labels{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": strconv.Itoa(c.Writer.Status()),
		}
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Delivery(channel, result string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
}

// SetStoreDurable flips the store backend gauge
func (m *Metrics) SetStoreDurable(durable bool) {
	if m == nil {
		return
	}
	if durable {
		m.storeBackend.Set(1)
	} else {
		m.storeBackend.Set(0)
	}
}

// GaugeFunc registers a gauge sampled from fn at scrape time
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}
