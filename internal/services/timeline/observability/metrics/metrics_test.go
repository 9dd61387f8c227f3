package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/residency/internal/services/timeline/projection"
)

var _ projection.Observer = (*Metrics)(nil)

func TestCacheObserverCounts(t *testing.T) {
	m := New()
	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.CacheEvicted()
	m.ComputationFailed()

	if got := testutil.ToFloat64(m.cacheHits); got != 2 {
		t.Fatalf("hits = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses); got != 1 {
		t.Fatalf("misses = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheEvictions); got != 1 {
		t.Fatalf("evictions = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheFailures); got != 1 {
		t.Fatalf("failures = %v", got)
	}
}

func TestUnaryServerInterceptorRecordsCodes(t *testing.T) {
	m := New()
	intercept := m.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/residency.timeline.v1.TimelineService/GetTimeline"}

	ok := func(context.Context, any) (any, error) { return "ok", nil }
	bad := func(context.Context, any) (any, error) { return nil, status.Error(codes.InvalidArgument, "nope") }

	if _, err := intercept(context.Background(), nil, info, ok); err != nil {
		t.Fatalf("ok handler: %v", err)
	}
	if _, err := intercept(context.Background(), nil, info, bad); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("interceptor must pass errors through, got %v", err)
	}

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GetTimeline", "OK")); got != 1 {
		t.Fatalf("OK count = %v", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GetTimeline", "InvalidArgument")); got != 1 {
		t.Fatalf("InvalidArgument count = %v", got)
	}
	if n := testutil.CollectAndCount(m.requestDuration); n != 1 {
		t.Fatalf("duration series = %d", n)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.CacheMiss()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "residency_projection_cache_misses_total 1") {
		t.Fatalf("metrics output missing cache misses:\n%s", body)
	}
}
