package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DialStage names the step of DialWithHealth that failed.
type DialStage string

const (
	DialStageConnect DialStage = "connect"
	DialStageHealth  DialStage = "health"
)

// ErrNoAddress is returned when the target address is blank.
var ErrNoAddress = errors.New("address is required")

// DialError carries the target and stage of a failed dial.
type DialError struct {
	Addr  string
	Stage DialStage
	Err   error
}

func (e *DialError) Error() string {
	if e == nil {
		return "dial failed"
	}
	if e.Addr == "" {
		return fmt.Sprintf("dial (%s): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("dial %s (%s): %v", e.Addr, e.Stage, e.Err)
}

func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ClientOptions are the dial options used when the caller passes none:
// plaintext inside the cluster with trace propagation.
func ClientOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// DialWithHealth returns a connection to addr once its health service reports
// SERVING, waiting at most timeout when it is positive.
func DialWithHealth(ctx context.Context, addr string, timeout time.Duration, logf func(string, ...any), opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := strings.TrimSpace(addr)
	if target == "" {
		return nil, &DialError{Stage: DialStageConnect, Err: ErrNoAddress}
	}
	if len(opts) == 0 {
		opts = ClientOptions()
	}

	conn, err := gogrpc.NewClient(target, opts...)
	if err != nil {
		return nil, &DialError{Addr: target, Stage: DialStageConnect, Err: err}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := WaitForHealth(ctx, conn, "", logf); err != nil {
		_ = conn.Close()
		return nil, &DialError{Addr: target, Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}
