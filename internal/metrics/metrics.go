// Package metrics exposes Prometheus collectors for the HTTP server and the
// marketplace domain.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arrienda"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	listingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "created_total",
			Help:      "Listings created.",
		},
	)

	listingsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "expired_total",
			Help:      "Listings expired by the cleanup job.",
		},
	)

	communityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "community",
			Name:      "events_total",
			Help:      "Community likes and matches.",
		},
		[]string{"event"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Chat messages sent.",
		},
	)

	chatSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "subscribers",
			Help:      "Open realtime chat subscriptions.",
		},
	)

	payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "status_total",
			Help:      "Payment status transitions.",
		},
		[]string{"status"},
	)

	cleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "runs_total",
			Help:      "Cleanup job runs by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		httpInFlight,
		httpRequests,
		httpDuration,
		listingsCreated,
		listingsExpired,
		communityEvents,
		messagesSent,
		chatSubscribers,
		payments,
		cleanupRuns,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// statusWriter captures the response status for labelling.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Middleware records request counts and latency. It must wrap the
// ServeMux directly so the matched route pattern is visible afterwards.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ListingCreated counts a new listing.
func ListingCreated() { listingsCreated.Inc() }

// ListingsExpired counts listings expired in one cleanup run.
func ListingsExpired(n int) { listingsExpired.Add(float64(n)) }

// Liked counts a stored like.
func Liked() { communityEvents.WithLabelValues("like").Inc() }

// Matched counts a new mutual match.
func Matched() { communityEvents.WithLabelValues("match").Inc() }

// MessageSent counts a chat message.
func MessageSent() { messagesSent.Inc() }

// SubscriberAdded and SubscriberRemoved track realtime chat subscriptions.
func SubscriberAdded() { chatSubscribers.Inc() }

// SubscriberRemoved decrements the realtime subscription gauge.
func SubscriberRemoved() { chatSubscribers.Dec() }

// PaymentStatus counts a payment status transition.
func PaymentStatus(status string) { payments.WithLabelValues(status).Inc() }

// CleanupRun counts a cleanup job run.
func CleanupRun(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cleanupRuns.WithLabelValues(outcome).Inc()
}
