// Package server wires the timeline runtime and its gRPC, metrics and change
// feed lifecycles.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	platformgrpc "github.com/louisbranch/residency/internal/platform/grpc"
	"github.com/louisbranch/residency/internal/platform/timeouts"
	"github.com/louisbranch/residency/internal/services/timeline/api/grpc/metadata"
	timelineservice "github.com/louisbranch/residency/internal/services/timeline/api/grpc/timeline"
	"github.com/louisbranch/residency/internal/services/timeline/changefeed"
	"github.com/louisbranch/residency/internal/services/timeline/domain/conflict"
	"github.com/louisbranch/residency/internal/services/timeline/engine"
	"github.com/louisbranch/residency/internal/services/timeline/observability/metrics"
	"github.com/louisbranch/residency/internal/services/timeline/projection"
	"github.com/louisbranch/residency/internal/services/timeline/storage/sqlite"
)

const storeCheckInterval = 15 * time.Second

// Config is the runtime configuration of the timeline service.
type Config struct {
	// Addr is the gRPC listen address.
	Addr string
	// MetricsAddr is the Prometheus listen address; empty disables it.
	MetricsAddr      string
	DBPath           string
	CacheSize        int
	BatchConcurrency int
	Policy           conflict.Policy
	ClockStep        time.Duration
	// ChangeFeed is disabled when it names no brokers.
	ChangeFeed changefeed.Config
}

// Server hosts the timeline gRPC API and its supporting processes.
type Server struct {
	listener        net.Listener
	grpcServer      *grpc.Server
	health          *platformgrpc.Health
	metricsListener net.Listener
	metricsServer   *http.Server
	consumer        *changefeed.Consumer
	store           *sqlite.Store
	cache           *projection.Cache[engine.Projection]
}

// New opens storage and binds listeners. Nothing is served until Serve.
func New(ctx context.Context, cfg Config) (*Server, error) {
	s := &Server{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	store, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s.store = store

	m := metrics.New()
	s.cache, err = projection.NewCache[engine.Projection](cfg.CacheSize, m)
	if err != nil {
		return nil, fmt.Errorf("create projection cache: %w", err)
	}
	eng, err := engine.New(store, s.cache, engine.Config{
		Policy:           cfg.Policy,
		BatchConcurrency: cfg.BatchConcurrency,
		ClockStep:        cfg.ClockStep,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	if s.listener, err = net.Listen("tcp", cfg.Addr); err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			metadata.UnaryServerInterceptor(nil),
			m.UnaryServerInterceptor(),
		),
	)
	timelineservice.RegisterTimelineServiceServer(s.grpcServer, timelineservice.NewService(eng))
	s.health = platformgrpc.NewHealth(timelineservice.ServiceName)
	s.health.Register(s.grpcServer)
	s.health.SetServing(true)

	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		if s.metricsListener, err = net.Listen("tcp", addr); err != nil {
			return nil, fmt.Errorf("listen metrics on %s: %w", addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		s.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
	}

	if len(cfg.ChangeFeed.Brokers) > 0 {
		if s.consumer, err = changefeed.NewConsumer(cfg.ChangeFeed, eng); err != nil {
			return nil, err
		}
	}

	ok = true
	return s, nil
}

// Addr returns the gRPC listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// MetricsAddr returns the metrics listener address, or "" when disabled.
func (s *Server) MetricsAddr() string {
	if s == nil || s.metricsListener == nil {
		return ""
	}
	return s.metricsListener.Addr().String()
}

// Run creates and serves a timeline server until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve runs every component until ctx ends or one of them fails, then shuts
// all of them down.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)

	log.Printf("timeline server listening at %v", s.listener.Addr())
	g.Go(func() error {
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})
	if s.metricsServer != nil {
		log.Printf("metrics listening at %v", s.metricsListener.Addr())
		g.Go(func() error {
			if err := s.metricsServer.Serve(s.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		})
	}
	if s.consumer != nil {
		g.Go(func() error {
			if err := s.consumer.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("change feed: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		s.watchStore(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

// watchStore flips the health status while the database is unreachable.
func (s *Server) watchStore(ctx context.Context) {
	ticker := time.NewTicker(storeCheckInterval)
	defer ticker.Stop()
	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		err := s.store.Ping(pingCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil && serving:
			log.Printf("event store unreachable: %v", err)
			s.health.SetServing(false)
			serving = false
		case err == nil && !serving:
			log.Printf("event store reachable again")
			s.health.SetServing(true)
			serving = true
		}
	}
}

func (s *Server) shutdown() {
	s.health.Shutdown()
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			log.Printf("close change feed: %v", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeouts.Shutdown):
		log.Printf("graceful stop timed out; forcing")
		s.grpcServer.Stop()
	}

	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			log.Printf("shutdown metrics: %v", err)
		}
	}
}

// Close releases server resources. It is safe on a partially built server.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.metricsServer != nil {
		_ = s.metricsServer.Close()
	}
	if s.metricsListener != nil {
		_ = s.metricsListener.Close()
	}
	if s.consumer != nil {
		_ = s.consumer.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close timeline store: %v", err)
		}
	}
}

func openStore(ctx context.Context, path string) (*sqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "residency.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open timeline sqlite store: %w", err)
	}
	return store, nil
}
