// Package main loads a JSON-lines event log into the timeline event store.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	seedcmd "github.com/louisbranch/residency/internal/cmd/seed"
	"github.com/louisbranch/residency/internal/platform/cmd"
	"github.com/louisbranch/residency/internal/platform/config"
)

func main() {
	cfg, err := seedcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix(cmd.LogPrefix(cmd.ServiceSeed))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedcmd.Run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		config.Exitf("seed: %v", err)
	}
}
