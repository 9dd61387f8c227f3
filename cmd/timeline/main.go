// Package main starts the timeline gRPC service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	timelinecmd "github.com/louisbranch/residency/internal/cmd/timeline"
	"github.com/louisbranch/residency/internal/platform/cmd"
	"github.com/louisbranch/residency/internal/platform/config"
)

func main() {
	cfg, err := timelinecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix(cmd.LogPrefix(cmd.ServiceTimeline))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := timelinecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
