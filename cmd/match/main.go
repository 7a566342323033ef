// Package main runs one match between two player programs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	matchcmd "github.com/louisbranch/matchbox/internal/cmd/match"
	entrypoint "github.com/louisbranch/matchbox/internal/platform/cmd"
	"github.com/louisbranch/matchbox/internal/platform/config"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: match [flags] <player1> <player2>")
		flag.PrintDefaults()
	}
	cfg, err := matchcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitCodef(platformerrors.ExitUsage, "parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := matchcmd.Run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		stop()
		config.ExitCodef(entrypoint.ExitStatus(err), "match: %v", err)
	}
}
