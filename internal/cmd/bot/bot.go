// Package bot parses reference player flags and plays one match over stdio.
package bot

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/louisbranch/matchbox/internal/player/sdk"
	"github.com/louisbranch/matchbox/internal/player/strategy"
	entrypoint "github.com/louisbranch/matchbox/internal/platform/cmd"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// Config holds bot command configuration.
type Config struct {
	Strategy string `env:"BOT_STRATEGY" envDefault:"first-free"`
	Verbose  bool   `env:"BOT_VERBOSE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "Strategy to play ("+strings.Join(strategy.Names(), ", ")+")")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Log every move to stderr")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run plays one match reading harness messages from in and writing replies to
// out. Debug output goes to errOut only.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer, errOut io.Writer) error {
	if errOut == nil {
		errOut = io.Discard
	}
	player, err := strategy.New(cfg.Strategy)
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeInvalidConfig, "select strategy", err)
	}
	logger := log.New(errOut, "", 0)

	opts := sdk.Options{}
	if cfg.Verbose {
		opts.Logger = log.New(errOut, "["+cfg.Strategy+"] ", 0)
	}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceBot, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		err := sdk.Run(ctx, in, out, player, opts)
		if errors.Is(err, strategy.ErrCrash) {
			fmt.Fprintln(errOut, "crashing on purpose")
		}
		return err
	})
}
