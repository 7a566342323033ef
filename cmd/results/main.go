// Package main lists recorded match results.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	resultscmd "github.com/louisbranch/matchbox/internal/cmd/results"
	entrypoint "github.com/louisbranch/matchbox/internal/platform/cmd"
	"github.com/louisbranch/matchbox/internal/platform/config"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

func main() {
	cfg, err := resultscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitCodef(platformerrors.ExitUsage, "parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := resultscmd.Run(ctx, cfg, os.Stdout); err != nil {
		stop()
		config.ExitCodef(entrypoint.ExitStatus(err), "results: %v", err)
	}
}
