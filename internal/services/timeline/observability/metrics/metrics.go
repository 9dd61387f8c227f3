// Package metrics exposes Prometheus metrics for the projection cache and the
// gRPC API.
package metrics

import (
	"context"
	"net/http"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "residency"

// Metrics holds every collector the timeline service reports. It implements
// projection.Observer.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheFailures  prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the service collectors, plus Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection_cache",
			Name:      "hits_total",
			Help:      "Projection lookups served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection_cache",
			Name:      "misses_total",
			Help:      "Projection lookups that had to wait for a computation.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection_cache",
			Name:      "evictions_total",
			Help:      "Projections evicted by the LRU bound.",
		}),
		cacheFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection_cache",
			Name:      "failures_total",
			Help:      "Shared projection computations that failed.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "requests_total",
			Help:      "Timeline API requests by method and gRPC code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "timeline",
			Name:      "request_duration_seconds",
			Help:      "Timeline API request latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cacheHits,
		m.cacheMisses,
		m.cacheEvictions,
		m.cacheFailures,
		m.requestsTotal,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) CacheHit()          { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss()         { m.cacheMisses.Inc() }
func (m *Metrics) CacheEvicted()      { m.cacheEvictions.Inc() }
func (m *Metrics) ComputationFailed() { m.cacheFailures.Inc() }

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// UnaryServerInterceptor counts and times every unary call.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := path.Base(info.FullMethod)
		m.requestsTotal.WithLabelValues(method, status.Code(err).String()).Inc()
		m.requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
