package grpc

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const testService = "residency.test.v1.Echo"

type healthFixture struct {
	addr   string
	health *Health
}

func serveHealth(t *testing.T, serving bool) healthFixture {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := gogrpc.NewServer()
	h := NewHealth(testService)
	h.Register(srv)
	h.SetServing(serving)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() {
		srv.Stop()
		<-done
	})
	return healthFixture{addr: lis.Addr().String(), health: h}
}

func clientConn(t *testing.T, addr string) *gogrpc.ClientConn {
	t.Helper()
	conn, err := gogrpc.NewClient(addr, gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHealthStartsNotServing(t *testing.T) {
	fx := serveHealth(t, false)
	conn := clientConn(t, fx.addr)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: testService})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %s", resp.GetStatus())
	}
}

func TestWaitForHealthNamedService(t *testing.T) {
	fx := serveHealth(t, true)
	conn := clientConn(t, fx.addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var lines []string
	logf := func(format string, args ...any) { lines = append(lines, format) }
	if err := WaitForHealth(ctx, conn, testService, logf); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("log lines = %v, want one", lines)
	}
}

func TestWaitForHealthSeesRecovery(t *testing.T) {
	fx := serveHealth(t, false)
	conn := clientConn(t, fx.addr)

	time.AfterFunc(250*time.Millisecond, func() { fx.health.SetServing(true) })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := WaitForHealth(ctx, conn, "", nil); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitForHealthReportsLastStatus(t *testing.T) {
	fx := serveHealth(t, false)
	conn := clientConn(t, fx.addr)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err := WaitForHealth(ctx, conn, testService, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "NOT_SERVING") {
		t.Fatalf("error = %v, want last status", err)
	}
}

func TestWaitForHealthNilConn(t *testing.T) {
	if err := WaitForHealth(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestHealthShutdownIsFinal(t *testing.T) {
	fx := serveHealth(t, true)
	conn := clientConn(t, fx.addr)

	fx.health.Shutdown()
	fx.health.SetServing(true)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %s after shutdown", resp.GetStatus())
	}
	var nilHealth *Health
	nilHealth.Shutdown()
}
