// Package main queries a running timeline service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	ctlcmd "github.com/louisbranch/residency/internal/cmd/timelinectl"
	"github.com/louisbranch/residency/internal/platform/cmd"
	"github.com/louisbranch/residency/internal/platform/config"
)

func main() {
	cfg, err := ctlcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("%v", err)
	}
	log.SetPrefix(cmd.LogPrefix(cmd.ServiceTimelineCtl))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctlcmd.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("%v", err)
	}
}
