package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/timekeeper/generic"
)

// Metrics holds the service counters on a private registry, so tests can
// build as many routers as they like.
type Metrics struct {
	registry      *prometheus.Registry
	httpRequests  *prometheus.CounterVec
	workflowCount *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		workflowCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_outcomes_total",
				Help: "Outcomes of leave and schedule operations",
			},
			[]string{"operation", "outcome"},
		),
	}
	m.registry.MustRegister(m.httpRequests, m.workflowCount)
	return m
}

// Middleware counts requests by route pattern, so ids do not blow up the
// label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(path, r.Method, strconv.Itoa(status)).Inc()
	})
}

// Observe records the outcome of one workflow operation.
func (m *Metrics) Observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(generic.Kind(err))
	}
	m.workflowCount.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry to tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
