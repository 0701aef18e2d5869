package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors on a private registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec

	postsScheduled   prometheus.Counter
	postsPublished   *prometheus.CounterVec
	publishFailures  *prometheus.CounterVec
	postsAbandoned   *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	autopilotRuns    *prometheus.CounterVec
	autopilotRunning prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postpilot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postpilot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	m.providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postpilot_ai_provider_requests_total",
			Help: "AI provider attempts by outcome",
		},
		[]string{"kind", "provider", "outcome"},
	)
	m.providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postpilot_ai_provider_latency_seconds",
			Help:    "AI provider call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind", "provider"},
	)
	m.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postpilot_ai_cache_lookups_total",
			Help: "AI response cache lookups by result",
		},
		[]string{"result"},
	)
	m.postsScheduled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "postpilot_posts_scheduled_total",
		Help: "Posts written to the calendar",
	})
	m.postsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postpilot_posts_published_total",
			Help: "Posts published by platform",
		},
		[]string{"platform"},
	)
	m.publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postpilot_publish_failures_total",
			Help: "Failed publish attempts by platform",
		},
		[]string{"platform"},
	)
	m.postsAbandoned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postpilot_posts_abandoned_total",
			Help: "Posts marked failed after exhausting publish attempts",
		},
		[]string{"platform"},
	)
	m.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "postpilot_publisher_tick_duration_seconds",
		Help:    "Duration of publisher ticks",
		Buckets: prometheus.DefBuckets,
	})
	m.autopilotRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postpilot_autopilot_runs_total",
			Help: "Finished autopilot runs by status",
		},
		[]string{"status"},
	)
	m.autopilotRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "postpilot_autopilot_runs_in_progress",
		Help: "Autopilot runs currently executing",
	})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.providerRequests,
		m.providerLatency,
		m.cacheLookups,
		m.postsScheduled,
		m.postsPublished,
		m.publishFailures,
		m.postsAbandoned,
		m.tickDuration,
		m.autopilotRuns,
		m.autopilotRunning,
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ProviderResult records one provider attempt. kind is "text" or "image".
func (m *Metrics) ProviderResult(kind, provider string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.providerRequests.WithLabelValues(kind, provider, outcome).Inc()
	m.providerLatency.WithLabelValues(kind, provider).Observe(took.Seconds())
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) PostsScheduled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.postsScheduled.Add(float64(n))
}

func (m *Metrics) PostPublished(platform string) {
	if m == nil {
		return
	}
	m.postsPublished.WithLabelValues(platform).Inc()
}

func (m *Metrics) PublishFailed(platform string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(platform).Inc()
}

func (m *Metrics) PostAbandoned(platform string) {
	if m == nil {
		return
	}
	m.postsAbandoned.WithLabelValues(platform).Inc()
}

func (m *Metrics) TickObserved(took time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(took.Seconds())
}

// RunStarted and RunFinished track autopilot run throughput.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.autopilotRunning.Inc()
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.autopilotRunning.Dec()
	m.autopilotRuns.WithLabelValues(status).Inc()
}
