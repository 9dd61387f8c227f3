// Package cmd holds the startup plumbing shared by every residency command:
// env+flag configuration loading and telemetry lifecycle around a run loop.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/residency/internal/platform/config"
	"github.com/louisbranch/residency/internal/platform/otel"
	"github.com/louisbranch/residency/internal/platform/timeouts"
)

// Process names, used as tracer service names and log prefixes.
const (
	ServiceTimeline    = "timeline"
	ServiceSeed        = "seed"
	ServiceTimelineCtl = "timelinectl"
)

// ParseConfig loads environment defaults into cfg. A non-empty scope reads
// RESIDENCY_<SCOPE>_* variables from unprefixed env tags.
func ParseConfig[T any](cfg *T, scope string) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if strings.TrimSpace(scope) == "" {
		return config.ParseEnv(cfg)
	}
	return config.ParseEnvScoped(cfg, scope)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// LogPrefix returns the bracketed log prefix used by a service process.
func LogPrefix(service string) string {
	return "[" + strings.ToUpper(strings.TrimSpace(service)) + "] "
}

// RunWithTelemetry installs the tracer provider for service, runs run with
// ctx and flushes spans before returning run's error.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) (err error) {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errors.New("service name is required")
	case run == nil:
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	flush, err := otel.Setup(ctx, "residency-"+service)
	if err != nil {
		return fmt.Errorf("telemetry for %s: %w", service, err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Shutdown)
		defer cancel()
		if ferr := flush(flushCtx); ferr != nil {
			log.Printf("flush telemetry: %v", ferr)
		}
	}()
	return run(ctx)
}
