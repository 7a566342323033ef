// Package main is a reference player program. It speaks the match protocol
// on stdin and stdout and logs to stderr.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	botcmd "github.com/louisbranch/matchbox/internal/cmd/bot"
	entrypoint "github.com/louisbranch/matchbox/internal/platform/cmd"
	"github.com/louisbranch/matchbox/internal/platform/config"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

func main() {
	cfg, err := botcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.ExitCodef(platformerrors.ExitUsage, "parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := botcmd.Run(ctx, cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		stop()
		config.ExitCodef(entrypoint.ExitStatus(err), "bot: %v", err)
	}
}
