// Package match parses match command flags, launches two player programs, and
// runs one match between them.
package match

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/matchbox/internal/games"
	"github.com/louisbranch/matchbox/internal/match"
	"github.com/louisbranch/matchbox/internal/match/player"
	"github.com/louisbranch/matchbox/internal/match/storage"
	"github.com/louisbranch/matchbox/internal/match/storage/sqlite"
	entrypoint "github.com/louisbranch/matchbox/internal/platform/cmd"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
	"github.com/louisbranch/matchbox/internal/platform/id"
	"github.com/louisbranch/matchbox/internal/platform/timeouts"
)

var _ match.Seat = (*player.Container)(nil)

// Config holds match command configuration.
type Config struct {
	Game          string        `env:"GAME" envDefault:"tictactoe"`
	Script        string        `env:"SCRIPT"`
	Rounds        int           `env:"ROUNDS"`
	MoveTimeout   time.Duration `env:"MOVE_TIMEOUT" envDefault:"10s"`
	ReadyTimeout  time.Duration `env:"READY_TIMEOUT" envDefault:"10s"`
	TimeoutPolicy string        `env:"TIMEOUT_POLICY" envDefault:"forfeit-match"`
	MaxTimeouts   int           `env:"MAX_TIMEOUTS" envDefault:"3"`
	Handshake     bool          `env:"HANDSHAKE" envDefault:"true"`
	Verbose       bool          `env:"VERBOSE"`
	DBPath        string        `env:"DB"`
	Sandbox       bool          `env:"SANDBOX"`
	SandboxImage  string        `env:"SANDBOX_IMAGE" envDefault:"python:3.11-alpine"`

	// Players are the two programs, taken from the positional arguments.
	Players []player.Program
}

// ParseConfig parses environment and flags into a Config. The two positional
// arguments are the player command lines.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Game, "game", cfg.Game, "Game to play ("+strings.Join(games.Names(), ", ")+")")
	fs.StringVar(&cfg.Script, "script", cfg.Script, "Rules script for the lua game")
	fs.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "Rounds for round based games (0 = game default)")
	fs.DurationVar(&cfg.MoveTimeout, "timeout", cfg.MoveTimeout, "Time a player gets to answer one move request")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "Time a player gets to announce readiness")
	fs.StringVar(&cfg.TimeoutPolicy, "timeout-policy", cfg.TimeoutPolicy, "What a timeout costs: forfeit-match or forfeit-move")
	fs.IntVar(&cfg.MaxTimeouts, "max-timeouts", cfg.MaxTimeouts, "Timeouts a player may spend under forfeit-move before forfeiting")
	fs.BoolVar(&cfg.Handshake, "handshake", cfg.Handshake, "Wait for {\"status\":\"ready\"} from each player before starting")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Show the game state and player debug output")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite file to record the result in (empty disables)")
	fs.BoolVar(&cfg.Sandbox, "sandbox", cfg.Sandbox, "Run each player in a docker container without network and with capped CPU and memory")
	fs.StringVar(&cfg.SandboxImage, "sandbox-image", cfg.SandboxImage, "Image used for sandboxed players")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	for _, arg := range fs.Args() {
		program, err := player.ParseProgram(arg)
		if err != nil {
			return Config{}, platformerrors.Wrap(platformerrors.CodeInvalidConfig, "parse player", err)
		}
		cfg.Players = append(cfg.Players, program)
	}
	return cfg, nil
}

// Run plays one match and prints its result to out. Player failures are
// match outcomes and return nil; launch, rules, storage and cancellation
// failures return an error carrying a code for the exit status.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if len(cfg.Players) != 2 {
		return platformerrors.New(platformerrors.CodeInvalidConfig,
			fmt.Sprintf("exactly two player programs are required, got %d", len(cfg.Players)))
	}
	policy, err := match.ParseTimeoutPolicy(cfg.TimeoutPolicy)
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeInvalidConfig, "timeout policy", err)
	}
	if cfg.MaxTimeouts < 1 {
		return platformerrors.New(platformerrors.CodeInvalidConfig, "max-timeouts must be at least 1")
	}
	rules, err := games.New(cfg.Game, games.Options{Rounds: cfg.Rounds, Script: cfg.Script})
	if err != nil {
		return err
	}

	logger := log.New(errOut, "", 0)
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceMatch, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		r := runner{cfg: cfg, policy: policy, rules: rules, out: out, logger: logger}
		return r.run(ctx)
	})
}

type runner struct {
	cfg    Config
	policy match.TimeoutPolicy
	rules  match.Rules
	out    io.Writer
	logger *log.Logger
}

func (r runner) sandbox() *player.Sandbox {
	if !r.cfg.Sandbox {
		return nil
	}
	sandbox := player.DefaultSandbox
	if image := strings.TrimSpace(r.cfg.SandboxImage); image != "" {
		sandbox.Image = image
	}
	return &sandbox
}

func (r runner) run(ctx context.Context) error {
	matchID, err := id.NewID()
	if err != nil {
		return err
	}

	var store *sqlite.Store
	if strings.TrimSpace(r.cfg.DBPath) != "" {
		store, err = sqlite.Open(r.cfg.DBPath)
		if err != nil {
			return platformerrors.Wrap(platformerrors.CodeStorage, "open results store", err)
		}
		defer store.Close()
	}

	containers := make([]*player.Container, 0, len(r.cfg.Players))
	defer func() {
		for _, c := range containers {
			if err := c.Terminate(); err != nil {
				r.logger.Printf("terminate %s: %v", c.ID(), err)
			}
		}
	}()
	seats := make([]match.Seat, 0, len(r.cfg.Players))
	programs := make(map[string]string, len(r.cfg.Players))
	for i, program := range r.cfg.Players {
		c := player.New(fmt.Sprintf("player%d", i+1), program, player.Options{
			Logger:      r.logger,
			Verbose:     r.cfg.Verbose,
			MaxTimeouts: r.maxTimeouts(),
			Sandbox:     r.sandbox(),
		})
		if err := c.Start(ctx); err != nil {
			return err
		}
		containers = append(containers, c)
		seats = append(seats, c)
		programs[c.ID()] = program.String()
	}

	orchestrator, err := match.New(r.rules, seats, match.Options{
		MatchID:       matchID,
		MoveTimeout:   r.cfg.MoveTimeout,
		ReadyTimeout:  r.cfg.ReadyTimeout,
		Handshake:     r.cfg.Handshake,
		TimeoutPolicy: r.policy,
		Logger:        r.logger,
		Verbose:       r.cfg.Verbose,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeInvalidConfig, "create match", err)
	}

	result, runErr := orchestrator.Run(ctx)
	writeResult(r.out, result, programs, r.cfg.Verbose)

	if store != nil {
		if err := r.record(store, result, programs); err != nil {
			if runErr != nil {
				r.logger.Printf("record match: %v", err)
				return runErr
			}
			return err
		}
	}
	return runErr
}

// maxTimeouts is the container allowance. Under forfeit-match the first
// timeout retires the player.
func (r runner) maxTimeouts() int {
	if r.policy == match.TimeoutForfeitMove {
		return r.cfg.MaxTimeouts
	}
	return 1
}

// record persists the result even when the match was cancelled.
func (r runner) record(store storage.MatchStore, result match.Result, programs map[string]string) error {
	record, moves, err := storage.FromResult(result, programs)
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeStorage, "convert result", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := store.RecordMatch(ctx, record, moves); err != nil {
		return platformerrors.Wrap(platformerrors.CodeStorage, "record match", err)
	}
	return nil
}

func writeResult(out io.Writer, result match.Result, programs map[string]string, verbose bool) {
	fmt.Fprintf(out, "match %s: %s\n", result.MatchID, result.Game)
	for _, p := range result.Players {
		role := ""
		if p.Role != "" {
			role = " (" + p.Role + ")"
		}
		fmt.Fprintf(out, "  %s%s: %s\n", p.ID, role, programs[p.ID])
	}
	fmt.Fprintf(out, "result: %s\n", result.Summary)
	fmt.Fprintf(out, "outcome: %s\n", result.Outcome)
	if result.Winner != "" {
		fmt.Fprintf(out, "winner: %s\n", result.Winner)
	}
	if result.Reason != "" {
		fmt.Fprintf(out, "reason: %s\n", result.Reason)
	}
	for _, f := range result.Forfeits {
		fmt.Fprintf(out, "  %s forfeited at time index %d: %s (%s)\n", f.PlayerID, f.TimeIndex, f.Code, f.Detail)
	}
	fmt.Fprintf(out, "steps: %d in %s\n", result.Steps, result.Duration().Round(time.Millisecond))
	if verbose && len(result.Data) > 0 {
		if data, err := json.Marshal(result.Data); err == nil {
			fmt.Fprintf(out, "final state: %s\n", data)
		}
	}
}
