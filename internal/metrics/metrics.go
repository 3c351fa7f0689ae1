// Package metrics exposes Prometheus collectors for the chat relay.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chat-relay/internal/retry"
)

const namespace = "chat_relay"

// Collector owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	attemptFailures *prometheus.CounterVec
	attemptTimeouts prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route, method and status code.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time to answer HTTP requests, including every upstream attempt and backoff.",
			// Upstream attempts may take up to 30s each.
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Error responses, by error type.",
		}, []string{"type"}),
		attemptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "attempt_failures_total",
			Help:      "Upstream attempts that failed at the transport level.",
		}, []string{"will_retry"}),
		attemptTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "attempt_timeouts_total",
			Help:      "Upstream attempts aborted by the per-attempt deadline.",
		}),
	}
	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.errorsTotal,
		c.attemptFailures,
		c.attemptTimeouts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveError records one ErrorResponse by its type.
func (c *Collector) ObserveError(errorType string) {
	if c == nil {
		return
	}
	c.errorsTotal.WithLabelValues(errorType).Inc()
}

// AttemptFailed implements retry.Observer.
func (c *Collector) AttemptFailed(_ retry.State, willRetry bool, _ time.Duration) {
	if c == nil {
		return
	}
	c.attemptFailures.WithLabelValues(strconv.FormatBool(willRetry)).Inc()
}

// AttemptTimedOut implements retry.Observer.
func (c *Collector) AttemptTimedOut(retry.State, time.Duration) {
	if c == nil {
		return
	}
	c.attemptTimeouts.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

var _ retry.Observer = (*Collector)(nil)
