package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthPollStart = 100 * time.Millisecond
	healthPollMax   = time.Second
)

// Health publishes one serving status for the server as a whole and for every
// named service it hosts.
type Health struct {
	server   *health.Server
	services []string
}

// NewHealth starts in NOT_SERVING until SetServing is called.
func NewHealth(services ...string) *Health {
	h := &Health{server: health.NewServer(), services: append([]string{""}, services...)}
	h.SetServing(false)
	return h
}

// Register attaches the health service to s.
func (h *Health) Register(s *gogrpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.server)
}

// SetServing flips every tracked service at once.
func (h *Health) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	for _, name := range h.services {
		h.server.SetServingStatus(name, status)
	}
}

// Shutdown reports NOT_SERVING permanently; later SetServing calls are ignored.
func (h *Health) Shutdown() {
	if h == nil {
		return
	}
	h.server.Shutdown()
}

// WaitForHealth polls the health service of conn until service reports
// SERVING. An empty service checks the server as a whole.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return errors.New("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	name := service
	if name == "" {
		name = "server"
	}

	client := grpc_health_v1.NewHealthClient(conn)
	wait := healthPollStart
	timer := time.NewTimer(0)
	defer timer.Stop()
	var last error
	for {
		select {
		case <-ctx.Done():
			if last != nil {
				return fmt.Errorf("health of %s: %w (last: %v)", name, ctx.Err(), last)
			}
			return fmt.Errorf("health of %s: %w", name, ctx.Err())
		case <-timer.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, healthPollMax)
		resp, err := client.Check(checkCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		switch {
		case err != nil:
			last = err
		case resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING:
			logf("%s is serving", name)
			return nil
		default:
			last = fmt.Errorf("status %s", resp.GetStatus())
		}
		logf("waiting for %s: %v", name, last)

		timer.Reset(wait)
		wait = min(wait*2, healthPollMax)
	}
}
