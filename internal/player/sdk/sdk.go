// Package sdk runs a Go player program against the match protocol over
// standard input and output.
//
// A player announces itself with {"status":"ready"}, receives game_start,
// answers every your_turn with one {"move": ...} line, and exits after
// game_over.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/louisbranch/matchbox/internal/match/player"
	"github.com/louisbranch/matchbox/internal/match/protocol"
	platformerrors "github.com/louisbranch/matchbox/internal/platform/errors"
)

// Player reacts to the messages of one match.
type Player interface {
	Start(ctx context.Context, start protocol.Start) error
	Move(ctx context.Context, req protocol.MoveRequest) (any, error)
	End(ctx context.Context, end protocol.End) error
}

// Raw is written to the harness verbatim in place of a move response.
type Raw string

// ErrNoReply tells Run to leave a move request unanswered.
var ErrNoReply = errors.New("no reply")

// ErrGameAborted reports that input closed before game_over arrived.
var ErrGameAborted = errors.New("input closed before game_over")

// Options configures Run.
type Options struct {
	// Logger receives debug output. Players must never log to stdout.
	Logger *log.Logger
	// SkipReady suppresses the readiness handshake.
	SkipReady bool
}

// Run drives p until game_over or until in closes.
func Run(ctx context.Context, in io.Reader, out io.Writer, p Player, opts Options) error {
	if p == nil {
		return errors.New("player is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	channel := player.NewChannel(in, out)
	defer channel.Close()

	if !opts.SkipReady {
		if err := channel.Send(protocol.Ready{}); err != nil {
			return fmt.Errorf("send ready: %w", err)
		}
	}

	for {
		msg, err := channel.Receive(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if platformerrors.HasCode(err, platformerrors.CodeStreamClosed) {
				return ErrGameAborted
			}
			return fmt.Errorf("receive: %w", err)
		}

		switch m := msg.(type) {
		case protocol.Start:
			if err := p.Start(ctx, m); err != nil {
				return fmt.Errorf("start: %w", err)
			}
		case protocol.MoveRequest:
			move, err := p.Move(ctx, m)
			if errors.Is(err, ErrNoReply) {
				logger.Printf("leaving time index %d unanswered", m.TimeIndex)
				continue
			}
			if err != nil {
				return fmt.Errorf("move %d: %w", m.TimeIndex, err)
			}
			if err := reply(channel, move); err != nil {
				return fmt.Errorf("reply %d: %w", m.TimeIndex, err)
			}
			logger.Printf("time index %d: played %v", m.TimeIndex, move)
		case protocol.End:
			logger.Printf("game over: %s", m.Result)
			return p.End(ctx, m)
		default:
			return fmt.Errorf("unexpected %s message from harness", msg.Kind())
		}
	}
}

func reply(channel *player.Channel, move any) error {
	if raw, ok := move.(Raw); ok {
		return channel.SendLine([]byte(raw))
	}
	resp, err := protocol.NewMoveResponse(move)
	if err != nil {
		return err
	}
	return channel.Send(resp)
}

// Funcs adapts plain functions to Player. Nil start and end hooks do nothing;
// a nil MoveFunc leaves every request unanswered.
type Funcs struct {
	StartFunc func(ctx context.Context, start protocol.Start) error
	MoveFunc  func(ctx context.Context, req protocol.MoveRequest) (any, error)
	EndFunc   func(ctx context.Context, end protocol.End) error
}

func (f Funcs) Start(ctx context.Context, start protocol.Start) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx, start)
}

func (f Funcs) Move(ctx context.Context, req protocol.MoveRequest) (any, error) {
	if f.MoveFunc == nil {
		return nil, ErrNoReply
	}
	return f.MoveFunc(ctx, req)
}

func (f Funcs) End(ctx context.Context, end protocol.End) error {
	if f.EndFunc == nil {
		return nil
	}
	return f.EndFunc(ctx, end)
}
